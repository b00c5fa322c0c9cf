package domain

import "time"

// AccountStatus enumerates possible account states.
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Account mirrors the persisted representation in the accounts table.
// Username plus Discriminator form the public handle; Email is unique.
type Account struct {
	ID               int64
	Username         string
	Discriminator    string
	Email            string
	PasswordHash     string
	Biography        string
	ProfilePicture   []byte
	Birthday         *time.Time
	TwoFactorEnabled bool
	Status           AccountStatus
	RegisteredAt     time.Time
	LastLogin        *time.Time
}

// Handle returns the user-facing identifier of the account.
func (a Account) Handle() string {
	return a.Username + "#" + a.Discriminator
}

// AutoLoginToken represents a persisted auto-login credential (stored as a hash).
type AutoLoginToken struct {
	ID        string
	AccountID int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// PendingVerification tracks an outstanding one-time-code challenge for
// a connection. At most one record exists per session; issuing a new code
// replaces the previous record.
type PendingVerification struct {
	AccountID int64
	Code      int64
	Attempts  int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code passed its wall-clock deadline.
func (p PendingVerification) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
