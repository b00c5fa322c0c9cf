package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

// AccountRepository implements port.AccountRepository using PostgreSQL.
// Email, biography, and profile picture are sealed with the at-rest field
// cipher; equality lookups go through deterministic SHA-256 index columns
// (email_hash) because sealed values are not comparable.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	fields  *security.FieldCipher
	builder squirrel.StatementBuilderType
}

var accountColumns = []string{
	"id",
	"username",
	"discriminator",
	"email_sealed",
	"email_hash",
	"password_hash",
	"biography_sealed",
	"profile_picture_sealed",
	"birthday",
	"two_factor_enabled",
	"status",
	"registered_at",
	"last_login",
}

// NewAccountRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor, fields *security.FieldCipher) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		fields:  fields,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new account row and returns the assigned id.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (int64, error) {
	emailSealed, err := r.seal([]byte(account.Email))
	if err != nil {
		return 0, fmt.Errorf("seal email: %w", err)
	}
	bioSealed, err := r.seal([]byte(account.Biography))
	if err != nil {
		return 0, fmt.Errorf("seal biography: %w", err)
	}
	pictureSealed, err := r.seal(account.ProfilePicture)
	if err != nil {
		return 0, fmt.Errorf("seal profile picture: %w", err)
	}

	query := r.builder.Insert("messenger.accounts").
		Columns(
			"username",
			"discriminator",
			"email_sealed",
			"email_hash",
			"password_hash",
			"biography_sealed",
			"profile_picture_sealed",
			"birthday",
			"two_factor_enabled",
			"status",
			"registered_at",
		).
		Values(
			account.Username,
			account.Discriminator,
			emailSealed,
			security.HashToken(account.Email),
			account.PasswordHash,
			bioSealed,
			pictureSealed,
			account.Birthday,
			account.TwoFactorEnabled,
			account.Status,
			account.RegisteredAt,
		).
		Suffix("RETURNING id")

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert account sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert account: %w", mapError(err))
	}

	return id, nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an account via the deterministic email index.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"email_hash": security.HashToken(email)})
}

// GetByHandle retrieves an account by its username#discriminator pair.
func (r *AccountRepository) GetByHandle(ctx context.Context, username, discriminator string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"username": username, "discriminator": discriminator})
}

// UpdateStatus transitions the account status.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus) error {
	sql, args, err := r.builder.Update("messenger.accounts").
		Set("status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update account status: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateLastLogin stamps the latest successful authentication.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	sql, args, err := r.builder.Update("messenger.accounts").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update last login: %w", mapError(err))
	}
	return nil
}

// Delete removes the account row. Relationship edges and tokens cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.builder.Delete("messenger.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) getWhere(ctx context.Context, pred any) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("messenger.accounts").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		account       domain.Account
		emailSealed   []byte
		emailHash     string
		bioSealed     []byte
		pictureSealed []byte
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Discriminator,
		&emailSealed,
		&emailHash,
		&account.PasswordHash,
		&bioSealed,
		&pictureSealed,
		&account.Birthday,
		&account.TwoFactorEnabled,
		&account.Status,
		&account.RegisteredAt,
		&account.LastLogin,
	); err != nil {
		return nil, fmt.Errorf("select account: %w", mapError(err))
	}

	email, err := r.open(emailSealed)
	if err != nil {
		return nil, fmt.Errorf("open email: %w", err)
	}
	bio, err := r.open(bioSealed)
	if err != nil {
		return nil, fmt.Errorf("open biography: %w", err)
	}
	picture, err := r.open(pictureSealed)
	if err != nil {
		return nil, fmt.Errorf("open profile picture: %w", err)
	}

	account.Email = string(email)
	account.Biography = string(bio)
	account.ProfilePicture = picture

	return &account, nil
}

func (r *AccountRepository) seal(value []byte) ([]byte, error) {
	if r.fields == nil {
		return value, nil
	}
	if len(value) == 0 {
		return nil, nil
	}
	return r.fields.Seal(value)
}

func (r *AccountRepository) open(sealed []byte) ([]byte, error) {
	if r.fields == nil || len(sealed) == 0 {
		return sealed, nil
	}
	return r.fields.Open(sealed)
}

var _ port.AccountRepository = (*AccountRepository)(nil)
