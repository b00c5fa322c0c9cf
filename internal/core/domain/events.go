package domain

import "time"

// AccountRegisteredEvent is emitted after an account row is created.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    int64
	Username     string
	Email        string
	Status       string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountVerifiedEvent is emitted when a verification code is accepted.
type AccountVerifiedEvent struct {
	EventID    string
	AccountID  int64
	VerifiedAt time.Time
	Attempts   int
	Metadata   map[string]any
}

// RelationshipUpdatedEvent is emitted after a relationship edge transition.
type RelationshipUpdatedEvent struct {
	EventID        string
	ActorID        int64
	TargetID       int64
	RequestedState string
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// ChatMessageRelayedEvent is emitted after a chat message is persisted.
// Delivered reports whether the receiver had a live connection at relay time.
type ChatMessageRelayedEvent struct {
	EventID    string
	MessageID  string
	SenderID   int64
	ReceiverID int64
	Delivered  bool
	RelayedAt  time.Time
	Metadata   map[string]any
}
