package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

// RelationshipRepository implements port.RelationshipRepository using
// PostgreSQL. A unique index over (LEAST(sender_id, receiver_id),
// GREATEST(sender_id, receiver_id)) guarantees at most one edge per pair,
// so every mutation here is one conditional statement and concurrent
// updates to the same pair serialize inside the database.
type RelationshipRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRelationshipRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewRelationshipRepository(exec pgExecutor) *RelationshipRepository {
	repo := &RelationshipRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetBlockedEdge returns the Blocked edge owned by senderID against
// receiverID, or repository.ErrNotFound.
func (r *RelationshipRepository) GetBlockedEdge(ctx context.Context, senderID, receiverID int64) (*domain.RelationshipEdge, error) {
	stmt, args, err := r.builder.
		Select("sender_id", "receiver_id", "state", "updated_at").
		From("messenger.relationships").
		Where(squirrel.Eq{
			"sender_id":   senderID,
			"receiver_id": receiverID,
			"state":       domain.RelationshipBlocked,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select blocked edge sql: %w", err)
	}

	var edge domain.RelationshipEdge
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&edge.SenderID,
		&edge.ReceiverID,
		&edge.State,
		&edge.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("select blocked edge: %w", mapError(err))
	}

	return &edge, nil
}

// UpsertPending creates or re-sends a directed Pending edge in one
// conditional insert. A request from the blocker lifts their own block
// back to Pending; a block owned by the other party survives the
// check-then-write race as a no-op.
func (r *RelationshipRepository) UpsertPending(ctx context.Context, senderID, receiverID int64) error {
	const stmt = `
INSERT INTO messenger.relationships (sender_id, receiver_id, state, updated_at)
VALUES ($1, $2, 'pending', now())
ON CONFLICT (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
DO UPDATE SET
	sender_id = EXCLUDED.sender_id,
	receiver_id = EXCLUDED.receiver_id,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at
WHERE messenger.relationships.state <> 'blocked'
   OR messenger.relationships.sender_id = EXCLUDED.sender_id`

	if _, err := r.exec.Exec(ctx, stmt, senderID, receiverID); err != nil {
		return fmt.Errorf("upsert pending edge: %w", mapError(err))
	}
	return nil
}

// SetStateBetween updates whichever edge exists between the pair,
// irrespective of direction.
func (r *RelationshipRepository) SetStateBetween(ctx context.Context, a, b int64, state domain.RelationshipState) error {
	stmt, args, err := r.builder.Update("messenger.relationships").
		Set("state", state).
		Set("updated_at", squirrel.Expr("now()")).
		Where(betweenPair(a, b)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update edge sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update edge state: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReplaceWithBlock atomically replaces any edge between the pair with a
// Blocked edge owned by blockerID. Direction matters afterwards: only the
// blocker can lift the block.
func (r *RelationshipRepository) ReplaceWithBlock(ctx context.Context, blockerID, blockedID int64) error {
	const stmt = `
INSERT INTO messenger.relationships (sender_id, receiver_id, state, updated_at)
VALUES ($1, $2, 'blocked', now())
ON CONFLICT (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
DO UPDATE SET
	sender_id = EXCLUDED.sender_id,
	receiver_id = EXCLUDED.receiver_id,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at`

	if _, err := r.exec.Exec(ctx, stmt, blockerID, blockedID); err != nil {
		return fmt.Errorf("replace edge with block: %w", mapError(err))
	}
	return nil
}

// DeleteBetween removes any edge between the pair regardless of direction.
func (r *RelationshipRepository) DeleteBetween(ctx context.Context, a, b int64) error {
	stmt, args, err := r.builder.Delete("messenger.relationships").
		Where(betweenPair(a, b)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete edge sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete edge: %w", mapError(err))
	}
	return nil
}

// ListForUser returns every edge touching the user in either direction.
// Which of them the user gets to see is the caller's policy.
func (r *RelationshipRepository) ListForUser(ctx context.Context, userID int64) ([]domain.RelationshipEdge, error) {
	stmt, args, err := r.builder.
		Select("sender_id", "receiver_id", "state", "updated_at").
		From("messenger.relationships").
		Where(squirrel.Or{
			squirrel.Eq{"sender_id": userID},
			squirrel.Eq{"receiver_id": userID},
		}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list edges sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", mapError(err))
	}
	defer rows.Close()

	var edges []domain.RelationshipEdge
	for rows.Next() {
		var edge domain.RelationshipEdge
		if err := rows.Scan(&edge.SenderID, &edge.ReceiverID, &edge.State, &edge.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", mapError(err))
	}

	return edges, nil
}

func betweenPair(a, b int64) squirrel.Sqlizer {
	return squirrel.Or{
		squirrel.Eq{"sender_id": a, "receiver_id": b},
		squirrel.Eq{"sender_id": b, "receiver_id": a},
	}
}

var _ port.RelationshipRepository = (*RelationshipRepository)(nil)
