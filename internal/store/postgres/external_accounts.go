package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"quackquery/internal/domain"
)

func (s *UsersStore) GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, error) {
	const q = `
		SELECT u.id, u.email, u.name, u.is_admin, u.created_at, u.updated_at, u.last_login_at
		FROM external_accounts ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.provider = $1 AND ea.provider_id = $2
	`
	u, err := scanUser(s.pool.QueryRow(ctx, q, provider, providerID))
	if err != nil {
		return domain.User{}, notFound("get user by external account", err)
	}
	return u, nil
}

func (s *UsersStore) LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) error {
	const q = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, q, userID, provider, providerID, nullIfEmpty(domain.NormalizeEmail(email))); err != nil {
		return mapUserWriteError(err)
	}
	return nil
}

// CreateUserWithExternalAccount inserts a passwordless user and its provider
// link in one transaction.
func (s *UsersStore) CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, name string) (domain.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.User{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUser = `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		RETURNING ` + userColumns
	email = domain.NormalizeEmail(email)
	u, err := scanUser(tx.QueryRow(ctx, insertUser, email, name))
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}

	const insertLink = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var linkID pgtype.UUID
	if err := tx.QueryRow(ctx, insertLink, u.ID, provider, providerID, email).Scan(&linkID); err != nil {
		return domain.User{}, mapUserWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}
