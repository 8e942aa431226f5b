package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

const userColumns = `id, email, name, is_admin, created_at, updated_at, last_login_at`

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var (
		u         domain.User
		id        pgtype.UUID
		lastLogin pgtype.Timestamptz
	)
	dest := append([]any{&id, &u.Email, &u.Name, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt, &lastLogin}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.User{}, err
	}
	u.ID = uuidOrEmpty(id)
	u.LastLoginAt = timestamptzPtr(lastLogin)
	return u, nil
}

func (s *UsersStore) CreateUser(ctx context.Context, email, name, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, domain.NormalizeEmail(email), name, nullIfEmpty(passwordHash)))
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.User{}, notFound("get user by id", err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `SELECT ` + userColumns + `, password_hash FROM users WHERE email = $1`

	var hash pgtype.Text
	u, err := scanUser(s.pool.QueryRow(ctx, q, domain.NormalizeEmail(email)), &hash)
	if err != nil {
		return domain.UserWithPassword{}, notFound("get user by email", err)
	}
	return domain.UserWithPassword{User: u, PasswordHash: textOrEmpty(hash)}, nil
}

func (s *UsersStore) SetLastLogin(ctx context.Context, userID string, when time.Time) error {
	const q = `UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, userID, when); err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return nil
}

func (s *UsersStore) CountAdmins(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM users WHERE is_admin`
	var n int
	if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// firstAdminLock keys the advisory lock that serialises first-admin claims.
const firstAdminLock = 0x71716164

// ClaimFirstAdmin promotes userID only while no admin exists. Claims take a
// transaction-scoped advisory lock first; under READ COMMITTED two claims for
// different rows would otherwise both see zero admins.
func (s *UsersStore) ClaimFirstAdmin(ctx context.Context, userID string) (domain.User, error) {
	if !validID(userID) {
		return domain.User{}, domain.ErrNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.User{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(firstAdminLock)); err != nil {
		return domain.User{}, fmt.Errorf("lock first admin claim: %w", err)
	}

	const q = `
		UPDATE users
		SET is_admin = true, updated_at = now()
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM users WHERE is_admin)
		RETURNING ` + userColumns

	u, err := scanUser(tx.QueryRow(ctx, q, userID))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return domain.User{}, fmt.Errorf("commit: %w", err)
		}
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("claim first admin: %w", err)
	}
	_ = tx.Rollback(ctx)
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return domain.User{}, err
	}
	return domain.User{}, domain.ErrAdminExists
}

func mapUserWriteError(err error) error {
	if name, ok := uniqueConstraint(err); ok {
		switch name {
		case "users_email_uq":
			return domain.ErrEmailTaken
		case "external_accounts_provider_uq", "external_accounts_user_provider_uq":
			return domain.ErrExternalAccountExists
		default:
			return fmt.Errorf("unique violation (%s): %w", name, err)
		}
	}
	return fmt.Errorf("write user: %w", err)
}
