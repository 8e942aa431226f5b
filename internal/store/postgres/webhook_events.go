package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

type WebhookEventsStore struct {
	pool *pgxpool.Pool
}

func NewWebhookEventsStore(pool *pgxpool.Pool) *WebhookEventsStore {
	return &WebhookEventsStore{pool: pool}
}

// RecordWebhookEvent stores the latest processing outcome of a delivery.
// Provider retries reuse the webhook id and overwrite the previous attempt.
func (s *WebhookEventsStore) RecordWebhookEvent(ctx context.Context, ev domain.WebhookEvent) error {
	const q = `
		INSERT INTO webhook_events (webhook_id, event_type, payment_id, payer_email, outcome, error, payload, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (webhook_id) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			payment_id = EXCLUDED.payment_id,
			payer_email = EXCLUDED.payer_email,
			outcome = EXCLUDED.outcome,
			error = EXCLUDED.error,
			payload = EXCLUDED.payload,
			processed_at = EXCLUDED.processed_at
	`
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := s.pool.Exec(ctx, q,
		ev.WebhookID,
		ev.EventType,
		nullIfEmpty(ev.PaymentID),
		nullIfEmpty(domain.NormalizeEmail(ev.PayerEmail)),
		string(ev.Outcome),
		nullIfEmpty(ev.Error),
		payload,
		ev.ReceivedAt,
		ev.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// ListWebhookEvents returns the newest events, optionally filtered by outcome.
func (s *WebhookEventsStore) ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `
		SELECT webhook_id, event_type, payment_id, payer_email, outcome, error, received_at, processed_at
		FROM webhook_events
		WHERE $1 = '' OR outcome = $1
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, outcome, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	out := []domain.WebhookEvent{}
	for rows.Next() {
		var (
			ev        domain.WebhookEvent
			paymentID pgtype.Text
			email     pgtype.Text
			errText   pgtype.Text
			processed pgtype.Timestamptz
		)
		if err := rows.Scan(&ev.WebhookID, &ev.EventType, &paymentID, &email, &ev.Outcome, &errText, &ev.ReceivedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		ev.PaymentID = textOrEmpty(paymentID)
		ev.PayerEmail = textOrEmpty(email)
		ev.Error = textOrEmpty(errText)
		ev.ProcessedAt = timestamptzPtr(processed)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	return out, nil
}
