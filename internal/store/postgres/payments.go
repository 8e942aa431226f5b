package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

type PaymentsStore struct {
	pool *pgxpool.Pool
}

func NewPaymentsStore(pool *pgxpool.Pool) *PaymentsStore {
	return &PaymentsStore{pool: pool}
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p      domain.Payment
		userID pgtype.UUID
	)
	if err := row.Scan(&p.ID, &userID, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Payment{}, err
	}
	p.UserID = uuidOrEmpty(userID)
	return p, nil
}

// LatestPaymentForUser returns the most recently created payment row. The
// unique user_id constraint keeps this at one row, the ordering only matters
// for data imported from before the constraint existed.
func (s *PaymentsStore) LatestPaymentForUser(ctx context.Context, userID string) (domain.Payment, error) {
	if !validID(userID) {
		return domain.Payment{}, domain.ErrNotFound
	}
	const q = `
		SELECT id, user_id, status, created_at, updated_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC, updated_at DESC
		LIMIT 1
	`
	p, err := scanPayment(s.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return domain.Payment{}, notFound("latest payment", err)
	}
	return p, nil
}

// UpsertPayment writes the single payment row of userID. Statuses that grant
// access always win. Any other status is only written while the existing row
// does not grant access or names the same payment, so a failure of an older
// attempt or a new checkout never revokes a completed purchase, while a cancel
// of the granting payment itself does. applied is false when the guard kept
// the old row.
func (s *PaymentsStore) UpsertPayment(ctx context.Context, userID, paymentID string, status domain.PaymentStatus) (domain.Payment, bool, error) {
	const q = `
		INSERT INTO payments (id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, status = EXCLUDED.status, updated_at = now()
		WHERE $4 OR payments.status NOT IN ('active', 'completed') OR payments.id = EXCLUDED.id
		RETURNING id, user_id, status, created_at, updated_at
	`
	p, err := scanPayment(s.pool.QueryRow(ctx, q, paymentID, userID, status, status.GrantsAccess()))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if name, ok := uniqueConstraint(err); ok {
			return domain.Payment{}, false, fmt.Errorf("upsert payment: payment id %q already belongs to another user (%s): %w", paymentID, name, err)
		}
		return domain.Payment{}, false, fmt.Errorf("upsert payment: %w", err)
	}
	existing, err := s.LatestPaymentForUser(ctx, userID)
	if err != nil {
		return domain.Payment{}, false, err
	}
	return existing, false, nil
}

func (s *PaymentsStore) ListPayments(ctx context.Context, limit int) ([]domain.PaymentListItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `
		SELECT p.id, p.user_id, u.email, u.name, p.status, p.created_at
		FROM payments p
		JOIN users u ON u.id = p.user_id
		UNION ALL
		SELECT pp.id, pp.claimed_by, pp.email, '', pp.status, pp.created_at
		FROM pending_payments pp
		WHERE pp.claimed_at IS NULL
		ORDER BY 6 DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []domain.PaymentListItem{}
	for rows.Next() {
		var (
			item   domain.PaymentListItem
			userID pgtype.UUID
		)
		if err := rows.Scan(&item.PaymentID, &userID, &item.Email, &item.Name, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		item.UserID = uuidOrEmpty(userID)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (s *PaymentsStore) Stats(ctx context.Context) (domain.AdminStats, error) {
	const q = `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM users WHERE is_admin),
			(SELECT count(*) FROM sudo_users),
			(SELECT count(*) FROM payments WHERE status IN ('active', 'completed')),
			(SELECT count(*) FROM pending_payments WHERE claimed_at IS NULL AND status = 'pending_signup'),
			(SELECT count(*) FROM payments WHERE status IN ('failed', 'cancelled'))
	`
	var st domain.AdminStats
	err := s.pool.QueryRow(ctx, q).Scan(
		&st.TotalUsers,
		&st.TotalAdminUsers,
		&st.TotalSudoUsers,
		&st.TotalPurchasedUsers,
		&st.TotalPendingSignup,
		&st.TotalFailedPayments,
	)
	if err != nil {
		return domain.AdminStats{}, fmt.Errorf("admin stats: %w", err)
	}
	return st, nil
}
