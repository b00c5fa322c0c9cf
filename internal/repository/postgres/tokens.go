package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
)

// TokenRepository stores auto-login tokens. Only token hashes hit the
// database; the raw token exists solely on the client that received it.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// CreateAutoLoginToken persists a freshly issued token hash.
func (r *TokenRepository) CreateAutoLoginToken(ctx context.Context, token domain.AutoLoginToken) error {
	stmt, args, err := r.builder.Insert("messenger.auto_login_tokens").
		Columns("id", "account_id", "token_hash", "created_at", "expires_at").
		Values(token.ID, token.AccountID, token.TokenHash, token.CreatedAt, token.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert auto-login token: %w", mapError(err))
	}
	return nil
}

// GetAutoLoginTokenByHash returns a live token matching the hash. Revoked
// and expired tokens read as repository.ErrNotFound.
func (r *TokenRepository) GetAutoLoginTokenByHash(ctx context.Context, hash string) (*domain.AutoLoginToken, error) {
	stmt, args, err := r.builder.
		Select("id", "account_id", "token_hash", "created_at", "expires_at", "revoked_at").
		From("messenger.auto_login_tokens").
		Where(squirrel.Eq{"token_hash": hash, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": time.Now().UTC()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.AutoLoginToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
	); err != nil {
		return nil, fmt.Errorf("select auto-login token: %w", mapError(err))
	}

	return &token, nil
}

// RevokeAutoLoginTokens marks every live token of the account as revoked
// and returns the affected hashes for cache eviction.
func (r *TokenRepository) RevokeAutoLoginTokens(ctx context.Context, accountID int64) ([]string, error) {
	stmt, args, err := r.builder.Update("messenger.auto_login_tokens").
		Set("revoked_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"account_id": accountID, "revoked_at": nil}).
		Suffix("RETURNING token_hash").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build revoke tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("revoke auto-login tokens: %w", mapError(err))
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan revoked token hash: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked tokens: %w", mapError(err))
	}
	return hashes, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
