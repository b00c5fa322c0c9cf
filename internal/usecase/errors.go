package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPayloadMissing indicates a request arrived without a required field.
	ErrPayloadMissing = errors.New("required payload data missing")
	// ErrWeakPassword indicates the password failed the complexity policy.
	ErrWeakPassword = errors.New("password does not meet complexity requirements")
	// ErrWrongLoginData indicates credentials or auto-login token did not match.
	ErrWrongLoginData = errors.New("wrong login data")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserIsBlocked indicates the target has blocked the acting user.
	ErrUserIsBlocked = errors.New("requested user is blocked")
	// ErrNoDataEntries indicates the operation referenced state that does not exist.
	ErrNoDataEntries = errors.New("no matching data entries")
)

// DuplicateAccountError reports an account creation rejected by a uniqueness
// constraint. Field is the user-facing name of the conflicting attribute.
type DuplicateAccountError struct {
	Field string
}

func (e *DuplicateAccountError) Error() string {
	return fmt.Sprintf("account already exists: duplicate %s", e.Field)
}

// RateLimitExceededError reports a sliding-window ceiling hit for a scope.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}
