package email

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/logger"
)

// LogNotifier logs verification codes instead of mailing them. Useful for
// development environments without an SMTP relay.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a development-friendly notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// SendVerificationEmail logs the code that would have been mailed.
func (n *LogNotifier) SendVerificationEmail(_ context.Context, account domain.Account, code int64) error {
	n.logger.Info("verification code issued",
		zap.Int64("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
		zap.Int64("code", code),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
