package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-messenger/internal/infra/security"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

// pgExecutor abstracts pgxpool.Pool and pgx.Tx for repository methods.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles all PostgreSQL-backed repositories over one pool.
type Repositories struct {
	Accounts      *AccountRepository
	Relationships *RelationshipRepository
	Chats         *ChatRepository
	Tokens        *TokenRepository
}

// NewRepositories wires every repository against the shared pool. The field
// cipher protects at-rest account fields and chat content.
func NewRepositories(pool *pgxpool.Pool, fields *security.FieldCipher) *Repositories {
	return &Repositories{
		Accounts:      NewAccountRepository(pool, fields),
		Relationships: NewRelationshipRepository(pool),
		Chats:         NewChatRepository(pool, fields),
		Tokens:        NewTokenRepository(pool),
	}
}

// mapError folds pgx errors into the repository sentinel taxonomy.
// Unique violations become ConflictError carrying the user-facing field of
// the violated constraint; connection-class failures become ErrUnavailable,
// which upstream treats as a drain signal.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return &repository.ConflictError{Field: constraintField(pgErr.ConstraintName)}
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
			return repository.ErrUnavailable
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return repository.ErrUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return repository.ErrUnavailable
	}

	return err
}

// constraintField maps a unique-constraint name to the user-facing field it
// protects.
func constraintField(constraint string) string {
	switch {
	case strings.Contains(constraint, "accounts_email_hash_key"):
		return "email"
	case strings.Contains(constraint, "accounts_username_discriminator_key"):
		return "username"
	}
	return ""
}
