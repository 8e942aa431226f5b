package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

type SudoUsersStore struct {
	pool *pgxpool.Pool
}

func NewSudoUsersStore(pool *pgxpool.Pool) *SudoUsersStore {
	return &SudoUsersStore{pool: pool}
}

func scanSudo(row pgx.Row) (domain.SudoUser, error) {
	var (
		u  domain.SudoUser
		id pgtype.UUID
	)
	if err := row.Scan(&id, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.SudoUser{}, err
	}
	u.ID = uuidOrEmpty(id)
	return u, nil
}

func (s *SudoUsersStore) GetSudoByEmail(ctx context.Context, email string) (domain.SudoUser, error) {
	const q = `SELECT id, email, created_at, updated_at FROM sudo_users WHERE email = $1`
	u, err := scanSudo(s.pool.QueryRow(ctx, q, domain.NormalizeEmail(email)))
	if err != nil {
		return domain.SudoUser{}, notFound("get sudo user", err)
	}
	return u, nil
}

func (s *SudoUsersStore) IsSudo(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sudo_users WHERE email = $1)`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, domain.NormalizeEmail(email)).Scan(&ok); err != nil {
		return false, fmt.Errorf("is sudo: %w", err)
	}
	return ok, nil
}

func (s *SudoUsersStore) InsertSudo(ctx context.Context, email string) (domain.SudoUser, error) {
	const q = `
		INSERT INTO sudo_users (email)
		VALUES ($1)
		RETURNING id, email, created_at, updated_at
	`
	u, err := scanSudo(s.pool.QueryRow(ctx, q, domain.NormalizeEmail(email)))
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == "sudo_users_email_uq" {
			return domain.SudoUser{}, domain.ErrSudoExists
		}
		return domain.SudoUser{}, fmt.Errorf("insert sudo user: %w", err)
	}
	return u, nil
}

func (s *SudoUsersStore) DeleteSudo(ctx context.Context, email string) error {
	const q = `DELETE FROM sudo_users WHERE email = $1`
	tag, err := s.pool.Exec(ctx, q, domain.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete sudo user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SudoUsersStore) ListSudo(ctx context.Context) ([]domain.SudoUser, error) {
	const q = `SELECT id, email, created_at, updated_at FROM sudo_users ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sudo users: %w", err)
	}
	defer rows.Close()

	out := []domain.SudoUser{}
	for rows.Next() {
		u, err := scanSudo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sudo user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sudo users: %w", err)
	}
	return out, nil
}
