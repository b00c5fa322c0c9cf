package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByHandle(ctx context.Context, username, discriminator string) (*domain.Account, error)
	UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}
