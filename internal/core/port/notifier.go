package port

import (
	"context"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// Notifier delivers out-of-band notifications to account owners.
// Delivery is fire-and-forget from the caller's perspective; failures are
// logged by implementations and never retried here.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, account domain.Account, code int64) error
}
