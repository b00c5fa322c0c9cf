package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, accountID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int64("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs messenger.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"account_id":    event.AccountID,
		"username":      event.Username,
		"status":        event.Status,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("messenger.account.registered", event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountVerified logs messenger.account.verified events.
func (p *StubPublisher) PublishAccountVerified(_ context.Context, event domain.AccountVerifiedEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"verified_at": event.VerifiedAt,
		"attempts":    event.Attempts,
		"metadata":    event.Metadata,
	}
	p.logEvent("messenger.account.verified", event.AccountID, event.VerifiedAt, payload)
	return nil
}

// PublishRelationshipUpdated logs messenger.relationship.updated events.
func (p *StubPublisher) PublishRelationshipUpdated(_ context.Context, event domain.RelationshipUpdatedEvent) error {
	payload := map[string]any{
		"actor_id":        event.ActorID,
		"target_id":       event.TargetID,
		"requested_state": event.RequestedState,
		"updated_at":      event.UpdatedAt,
		"metadata":        event.Metadata,
	}
	p.logEvent("messenger.relationship.updated", event.ActorID, event.UpdatedAt, payload)
	return nil
}

// PublishChatMessageRelayed logs messenger.chat.message.relayed events.
func (p *StubPublisher) PublishChatMessageRelayed(_ context.Context, event domain.ChatMessageRelayedEvent) error {
	payload := map[string]any{
		"message_id":  event.MessageID,
		"sender_id":   event.SenderID,
		"receiver_id": event.ReceiverID,
		"delivered":   event.Delivered,
		"relayed_at":  event.RelayedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("messenger.chat.message.relayed", event.SenderID, event.RelayedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
