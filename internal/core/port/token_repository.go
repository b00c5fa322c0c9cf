package port

import (
	"context"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// TokenRepository persists hashed auto-login tokens.
type TokenRepository interface {
	CreateAutoLoginToken(ctx context.Context, token domain.AutoLoginToken) error
	GetAutoLoginTokenByHash(ctx context.Context, hash string) (*domain.AutoLoginToken, error)
	// RevokeAutoLoginTokens marks the account's live tokens revoked and
	// returns their hashes so callers can evict cache entries.
	RevokeAutoLoginTokens(ctx context.Context, accountID int64) ([]string, error)
}

// TokenCache is a read-through cache in front of TokenRepository lookups.
type TokenCache interface {
	GetAccountID(ctx context.Context, hash string) (int64, bool, error)
	PutAccountID(ctx context.Context, hash string, accountID int64) error
	Invalidate(ctx context.Context, hash string) error
}
