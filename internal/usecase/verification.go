package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
)

const (
	defaultVerificationAttempts = 3
	defaultVerificationTTL      = 10 * time.Minute
)

// CheckResult is the outcome of a verification code submission.
type CheckResult int

const (
	// CheckRetry means the code did not match and attempts remain.
	CheckRetry CheckResult = iota
	// CheckSuccess means the code matched before the ceiling was reached.
	CheckSuccess
	// CheckExhausted means the attempt ceiling or the code deadline was hit;
	// the challenge is dead and the flow must restart.
	CheckExhausted
)

// VerificationService issues one-time codes and judges submissions against
// the attempt ceiling. The pending record itself lives in the connection's
// session; this service owns only the transition rules.
type VerificationService struct {
	cfg      *config.AppConfig
	accounts port.AccountRepository
	notifier port.Notifier
	events   port.EventPublisher
	logger   *zap.Logger
}

// NewVerificationService constructs a verification service.
func NewVerificationService(cfg *config.AppConfig, accounts port.AccountRepository, notifier port.Notifier, events port.EventPublisher, log *zap.Logger) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationService{cfg: cfg, accounts: accounts, notifier: notifier, events: events, logger: log}
}

// IssueCode generates a fresh challenge for the account and mails the code.
// Mail delivery is fire-and-forget: a failed send is logged, the challenge
// stands, and the client may restart the flow if the mail never arrives.
func (s *VerificationService) IssueCode(ctx context.Context, account domain.Account) (domain.PendingVerification, error) {
	code, err := security.GenerateVerificationCode()
	if err != nil {
		return domain.PendingVerification{}, fmt.Errorf("generate verification code: %w", err)
	}

	now := time.Now().UTC()
	record := domain.PendingVerification{
		AccountID: account.ID,
		Code:      code,
		Attempts:  0,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codeTTL()),
	}

	if s.notifier != nil {
		if err := s.notifier.SendVerificationEmail(ctx, account, code); err != nil {
			s.logger.Warn("verification mail send failed",
				zap.Int64("account_id", account.ID),
				zap.Error(err),
			)
		}
	}

	return record, nil
}

// CheckCode judges a submission and advances the record. The caller keeps
// the returned record on Retry and must drop it on Success or Exhausted.
// Expiry is checked lazily at submission time; an expired challenge reads
// as Exhausted regardless of the submitted code.
func (s *VerificationService) CheckCode(ctx context.Context, record *domain.PendingVerification, submitted int64) (CheckResult, error) {
	if record == nil {
		return CheckExhausted, fmt.Errorf("no pending verification")
	}

	now := time.Now().UTC()
	if record.Expired(now) {
		return CheckExhausted, nil
	}

	if submitted != record.Code {
		record.Attempts++
		if record.Attempts >= s.maxAttempts() {
			return CheckExhausted, nil
		}
		return CheckRetry, nil
	}

	if record.Attempts >= s.maxAttempts() {
		return CheckExhausted, nil
	}

	if err := s.accounts.UpdateStatus(ctx, record.AccountID, domain.AccountStatusActive); err != nil {
		return CheckRetry, fmt.Errorf("activate account: %w", err)
	}

	if s.events != nil {
		event := domain.AccountVerifiedEvent{
			EventID:    uuid.NewString(),
			AccountID:  record.AccountID,
			VerifiedAt: now,
			Attempts:   record.Attempts,
		}
		if err := s.events.PublishAccountVerified(ctx, event); err != nil {
			s.logger.Warn("publish account verified event failed", zap.Error(err))
		}
	}

	return CheckSuccess, nil
}

func (s *VerificationService) maxAttempts() int {
	if s.cfg != nil && s.cfg.Verification.MaxAttempts > 0 {
		return s.cfg.Verification.MaxAttempts
	}
	return defaultVerificationAttempts
}

func (s *VerificationService) codeTTL() time.Duration {
	if s.cfg != nil && s.cfg.Verification.CodeTTL > 0 {
		return s.cfg.Verification.CodeTTL
	}
	return defaultVerificationTTL
}
