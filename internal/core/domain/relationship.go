package domain

import "time"

// RelationshipState enumerates the states a relationship edge can hold.
type RelationshipState string

const (
	RelationshipNone    RelationshipState = "none"
	RelationshipPending RelationshipState = "pending"
	RelationshipFriend  RelationshipState = "friend"
	RelationshipBlocked RelationshipState = "blocked"
)

// Valid reports whether the state is one of the protocol states.
func (s RelationshipState) Valid() bool {
	switch s {
	case RelationshipNone, RelationshipPending, RelationshipFriend, RelationshipBlocked:
		return true
	}
	return false
}

// RelationshipEdge is the persisted directed record between two accounts.
// SenderID is the side that initiated the current state: the request
// originator for Pending, the blocking side for Blocked. For Friend the
// direction is historical only.
type RelationshipEdge struct {
	SenderID   int64
	ReceiverID int64
	State      RelationshipState
	UpdatedAt  time.Time
}

// EdgeView is the tagged-variant reading of an edge between a fixed pair.
// DirectionOwner is the account that owns the direction of the state:
// set for Pending (who sent the request) and Blocked (who placed the
// block), zero for None and Friend where direction has collapsed.
type EdgeView struct {
	State          RelationshipState
	DirectionOwner int64
}

// View projects the raw edge into its tagged-variant form.
func (e RelationshipEdge) View() EdgeView {
	switch e.State {
	case RelationshipPending, RelationshipBlocked:
		return EdgeView{State: e.State, DirectionOwner: e.SenderID}
	case RelationshipFriend:
		return EdgeView{State: RelationshipFriend}
	default:
		return EdgeView{State: RelationshipNone}
	}
}

// Relationship is the other party as one user sees it: profile fields of
// the counterpart plus the state of the shared edge.
type Relationship struct {
	UserID         int64             `json:"id"`
	Username       string            `json:"username"`
	Discriminator  string            `json:"discriminator"`
	Biography      string            `json:"biography"`
	ProfilePicture []byte            `json:"profilePicture,omitempty"`
	State          RelationshipState `json:"relationshipState"`
}

// TargetRef identifies the other side of a relationship update. Either ID
// is set, or Username+Discriminator are used to resolve it.
type TargetRef struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// ByID reports whether the reference carries a direct account id.
func (t TargetRef) ByID() bool { return t.ID > 0 }
