package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

type PendingPaymentsStore struct {
	pool *pgxpool.Pool
}

func NewPendingPaymentsStore(pool *pgxpool.Pool) *PendingPaymentsStore {
	return &PendingPaymentsStore{pool: pool}
}

// UpsertPendingPayment records a payment for an email that has no account.
// Claimed rows are never touched, and a failure never overwrites a completed
// pending_signup row. applied is false when the existing row was kept.
func (s *PendingPaymentsStore) UpsertPendingPayment(ctx context.Context, id, email string, status domain.PaymentStatus) (bool, error) {
	const q = `
		INSERT INTO pending_payments (id, email, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, status = EXCLUDED.status, updated_at = now()
		WHERE pending_payments.claimed_at IS NULL
		  AND ($3 = 'pending_signup' OR pending_payments.status <> 'pending_signup')
		RETURNING id
	`
	var got string
	err := s.pool.QueryRow(ctx, q, id, domain.NormalizeEmail(email), status).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert pending payment: %w", err)
	}
	return true, nil
}

// ClaimPendingPayments links every unclaimed pending_signup payment for email
// to userID: the newest one becomes the user's active payment row and all of
// them are marked claimed. Running it again finds nothing.
func (s *PendingPaymentsStore) ClaimPendingPayments(ctx context.Context, userID, email string) ([]domain.ReconciledPayment, error) {
	email = domain.NormalizeEmail(email)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const lock = `
		SELECT id
		FROM pending_payments
		WHERE email = $1 AND claimed_at IS NULL AND status = 'pending_signup'
		ORDER BY created_at DESC
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, lock, email)
	if err != nil {
		return nil, fmt.Errorf("lock pending payments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("lock pending payments: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	const activate = `
		INSERT INTO payments (id, user_id, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, status = 'active', updated_at = now()
	`
	if _, err := tx.Exec(ctx, activate, ids[0], userID); err != nil {
		return nil, fmt.Errorf("activate payment: %w", err)
	}

	const claim = `
		UPDATE pending_payments
		SET claimed_by = $2, claimed_at = now(), status = 'active', updated_at = now()
		WHERE id = ANY($1)
	`
	if _, err := tx.Exec(ctx, claim, ids, userID); err != nil {
		return nil, fmt.Errorf("claim pending payments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	out := make([]domain.ReconciledPayment, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ReconciledPayment{PaymentID: id, Email: email, UserID: userID, Status: "activated"})
	}
	return out, nil
}

// ListUnclaimedPending returns the unclaimed pending_signup rows, oldest first.
func (s *PendingPaymentsStore) ListUnclaimedPending(ctx context.Context) ([]domain.PendingPayment, error) {
	const q = `
		SELECT id, email, status, created_at, updated_at
		FROM pending_payments
		WHERE claimed_at IS NULL AND status = 'pending_signup'
		ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	out := []domain.PendingPayment{}
	for rows.Next() {
		var p domain.PendingPayment
		if err := rows.Scan(&p.ID, &p.Email, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return out, nil
}
