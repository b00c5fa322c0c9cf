package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-messenger/internal/core/port"
)

const defaultAutoLoginPrefix = "msg:auto_login"

// TokenCacheRepository caches auto-login token lookups so returning clients
// skip a database round trip on reconnect. Keys are token hashes, never raw
// tokens.
type TokenCacheRepository struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewTokenCacheRepository constructs an auto-login token cache helper.
func NewTokenCacheRepository(client *red.Client, keyPrefix string, ttl time.Duration) *TokenCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAutoLoginPrefix
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &TokenCacheRepository{client: client, prefix: prefix, ttl: ttl}
}

// GetAccountID fetches the cached account for a token hash. The second
// return reports a cache hit; a miss is not an error.
func (r *TokenCacheRepository) GetAccountID(ctx context.Context, hash string) (int64, bool, error) {
	key := r.key(hash)
	if key == "" {
		return 0, false, fmt.Errorf("token hash is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get auto-login token: %w", err)
	}

	parsed, parseErr := strconv.ParseInt(value, 10, 64)
	if parseErr != nil {
		return 0, false, fmt.Errorf("parse cached account id: %w", parseErr)
	}

	return parsed, true, nil
}

// PutAccountID caches the account behind the token hash with the configured TTL.
func (r *TokenCacheRepository) PutAccountID(ctx context.Context, hash string, accountID int64) error {
	key := r.key(hash)
	if key == "" {
		return fmt.Errorf("token hash is required")
	}
	if accountID <= 0 {
		return fmt.Errorf("account id must be positive")
	}

	if err := r.client.Set(ctx, key, strconv.FormatInt(accountID, 10), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set auto-login token: %w", err)
	}
	return nil
}

// Invalidate removes the cache entry, used when a token is revoked.
func (r *TokenCacheRepository) Invalidate(ctx context.Context, hash string) error {
	key := r.key(hash)
	if key == "" {
		return fmt.Errorf("token hash is required")
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete auto-login token: %w", err)
	}
	return nil
}

func (r *TokenCacheRepository) key(hash string) string {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.TokenCache = (*TokenCacheRepository)(nil)
