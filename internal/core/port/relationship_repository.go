package port

import (
	"context"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// RelationshipRepository persists the directed relationship graph. Every
// mutation is a single conditional statement so that concurrent updates to
// the same pair are serialized by the database, not by callers.
type RelationshipRepository interface {
	// GetBlockedEdge returns the Blocked edge with senderID as the blocking
	// side and receiverID as the blocked side, or repository.ErrNotFound.
	GetBlockedEdge(ctx context.Context, senderID, receiverID int64) (*domain.RelationshipEdge, error)
	// UpsertPending creates or re-sends a directed Pending edge from
	// senderID to receiverID in one conditional insert.
	UpsertPending(ctx context.Context, senderID, receiverID int64) error
	// SetStateBetween updates whichever edge exists between the pair,
	// irrespective of direction. Returns repository.ErrNotFound when no
	// edge exists.
	SetStateBetween(ctx context.Context, a, b int64, state domain.RelationshipState) error
	// ReplaceWithBlock atomically removes any edge between the pair and
	// inserts a Blocked edge owned by blockerID.
	ReplaceWithBlock(ctx context.Context, blockerID, blockedID int64) error
	// DeleteBetween removes any edge between the pair regardless of
	// direction.
	DeleteBetween(ctx context.Context, a, b int64) error
	// ListForUser returns the relationships visible to the user: every edge
	// touching the user except the user's own unanswered outgoing requests
	// and blocks placed on the user. Incoming Pending requests are included
	// so the receiving side can answer them.
	ListForUser(ctx context.Context, userID int64) ([]domain.RelationshipEdge, error)
}
