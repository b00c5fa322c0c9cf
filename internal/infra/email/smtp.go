package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/logger"
)

// SMTPNotifier delivers verification codes over plain SMTP with AUTH.
type SMTPNotifier struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
}

// NewSMTPNotifier constructs a notifier from SMTP settings.
func NewSMTPNotifier(cfg config.SMTPSettings, log *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, logger: log}
}

// SendVerificationEmail sends the one-time code to the account's address.
// The context deadline is not propagated into net/smtp; callers should keep
// delivery off the connection's read loop.
func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, account domain.Account, code int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", account.Email)
	fmt.Fprintf(&body, "Subject: Your verification code\r\n")
	fmt.Fprintf(&body, "\r\n")
	fmt.Fprintf(&body, "Hello %s,\r\n\r\n", account.Username)
	fmt.Fprintf(&body, "Your verification code is %d.\r\n", code)
	fmt.Fprintf(&body, "If you did not request this code, ignore this message.\r\n")

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{account.Email}, []byte(body.String())); err != nil {
		n.logger.Error("verification mail delivery failed",
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err),
		)
		return fmt.Errorf("send verification mail: %w", err)
	}

	n.logger.Info("verification mail sent",
		zap.String("email", logger.MaskEmail(account.Email)),
	)
	return nil
}

var _ port.Notifier = (*SMTPNotifier)(nil)
