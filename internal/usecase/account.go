package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/logger"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

const (
	loginRateLimitScope         = "login"
	createAccountRateLimitScope = "create_account"

	autoLoginTokenTTL = 30 * 24 * time.Hour
)

// AccountService handles account creation and both login paths.
type AccountService struct {
	cfg               *config.AppConfig
	accounts          port.AccountRepository
	tokens            port.TokenRepository
	tokenCache        port.TokenCache
	rateLimits        port.RateLimitStore
	events            port.EventPublisher
	passwordValidator *security.PasswordValidator
	logger            *zap.Logger
}

// NewAccountService constructs an account service.
func NewAccountService(cfg *config.AppConfig, accounts port.AccountRepository, tokens port.TokenRepository, tokenCache port.TokenCache, rateLimits port.RateLimitStore, events port.EventPublisher, validator *security.PasswordValidator, log *zap.Logger) *AccountService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		cfg:               cfg,
		accounts:          accounts,
		tokens:            tokens,
		tokenCache:        tokenCache,
		rateLimits:        rateLimits,
		events:            events,
		passwordValidator: validator,
		logger:            log,
	}
}

// CreateAccountInput carries the fields of an account creation request.
type CreateAccountInput struct {
	Username      string
	Discriminator string
	Email         string
	Password      string
	Biography     string
	Birthday      *time.Time
}

// CreateAccount provisions a new account in Pending status. The caller is
// expected to start the verification workflow next; the account stays
// unverified until a code is accepted.
func (s *AccountService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	username := strings.TrimSpace(input.Username)
	discriminator := strings.TrimSpace(input.Discriminator)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || discriminator == "" || email == "" || password == "" {
		return nil, ErrPayloadMissing
	}

	now := time.Now().UTC()
	if err := s.enforceRateLimit(ctx, createAccountRateLimitScope, email, s.createAccountLimit(), now); err != nil {
		return nil, err
	}

	if err := s.passwordValidator.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := domain.Account{
		Username:      username,
		Discriminator: discriminator,
		Email:         email,
		PasswordHash:  passwordHash,
		Biography:     strings.TrimSpace(input.Biography),
		Birthday:      input.Birthday,
		Status:        domain.AccountStatusPending,
		RegisteredAt:  now,
	}

	id, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, &DuplicateAccountError{Field: s.conflictField(err)}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	account.ID = id

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    id,
			Username:     account.Handle(),
			Email:        logger.MaskEmail(email),
			Status:       string(account.Status),
			RegisteredAt: now,
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("publish account registered event failed", zap.Error(err))
		}
	}

	return &account, nil
}

// Login authenticates with email and password. The caller decides whether a
// verification challenge follows based on the account's two-factor flag.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, ErrPayloadMissing
	}

	now := time.Now().UTC()
	if err := s.enforceRateLimit(ctx, loginRateLimitScope, email, s.loginLimit(), now); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWrongLoginData
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrWrongLoginData
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	lastLogin := now
	account.LastLogin = &lastLogin

	return account, nil
}

// IssueAutoLoginToken rotates the account's auto-login token: prior
// tokens are revoked, then a fresh one is minted. Only the hash is
// persisted; the raw token goes back to the client once.
func (s *AccountService) IssueAutoLoginToken(ctx context.Context, accountID int64) (string, error) {
	if err := s.RevokeAutoLoginTokens(ctx, accountID); err != nil {
		return "", err
	}

	raw, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate auto-login token: %w", err)
	}

	now := time.Now().UTC()
	hash := security.HashToken(raw)
	token := domain.AutoLoginToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(autoLoginTokenTTL),
	}

	if err := s.tokens.CreateAutoLoginToken(ctx, token); err != nil {
		return "", fmt.Errorf("store auto-login token: %w", err)
	}

	if s.tokenCache != nil {
		if err := s.tokenCache.PutAccountID(ctx, hash, accountID); err != nil {
			s.logger.Warn("cache auto-login token failed", zap.Error(err))
		}
	}

	return raw, nil
}

// AutoLogin authenticates with a previously issued token.
func (s *AccountService) AutoLogin(ctx context.Context, rawToken string) (*domain.Account, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrPayloadMissing
	}

	hash := security.HashToken(rawToken)

	var accountID int64
	if s.tokenCache != nil {
		cached, hit, err := s.tokenCache.GetAccountID(ctx, hash)
		if err != nil {
			s.logger.Warn("auto-login cache lookup failed", zap.Error(err))
		} else if hit {
			accountID = cached
		}
	}

	if accountID == 0 {
		token, err := s.tokens.GetAutoLoginTokenByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrWrongLoginData
			}
			return nil, fmt.Errorf("lookup auto-login token: %w", err)
		}
		accountID = token.AccountID

		if s.tokenCache != nil {
			if err := s.tokenCache.PutAccountID(ctx, hash, accountID); err != nil {
				s.logger.Warn("cache auto-login token failed", zap.Error(err))
			}
		}
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWrongLoginData
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account.Status == domain.AccountStatusDisabled {
		return nil, ErrWrongLoginData
	}

	now := time.Now().UTC()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.Int64("account_id", account.ID), zap.Error(err))
	}

	return account, nil
}

// RevokeAutoLoginTokens invalidates every live token of the account,
// evicting each from the cache so a revoked token stops authenticating
// immediately rather than after the cache TTL.
func (s *AccountService) RevokeAutoLoginTokens(ctx context.Context, accountID int64) error {
	hashes, err := s.tokens.RevokeAutoLoginTokens(ctx, accountID)
	if err != nil {
		return fmt.Errorf("revoke auto-login tokens: %w", err)
	}

	if s.tokenCache != nil {
		for _, hash := range hashes {
			if err := s.tokenCache.Invalidate(ctx, hash); err != nil {
				s.logger.Warn("evict auto-login token failed", zap.Int64("account_id", accountID), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *AccountService) loginLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.LoginMaxAttempts
}

func (s *AccountService) createAccountLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.CreateAccountMaxAttempts
}

func (s *AccountService) enforceRateLimit(ctx context.Context, scope, identifier string, limit int, now time.Time) error {
	if s.rateLimits == nil || limit <= 0 {
		return nil
	}

	window := time.Hour
	if s.cfg != nil && s.cfg.RateLimit.WindowDuration > 0 {
		window = s.cfg.RateLimit.WindowDuration
	}

	storageKey := fmt.Sprintf("%s:%s", scope, security.HashToken(identifier))

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("rate limit record failed", zap.Error(err))
	}

	return nil
}

func (s *AccountService) conflictField(err error) string {
	var conflict *repository.ConflictError
	if errors.As(err, &conflict) && conflict.Field != "" {
		return conflict.Field
	}
	return "account"
}
