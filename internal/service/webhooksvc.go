package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"quackquery/internal/domain"
	"quackquery/internal/metrics"
	"quackquery/internal/payments"
)

type WebhookVerifier interface {
	Verify(h http.Header, body []byte) error
}

type PaymentLookup interface {
	GetPayment(ctx context.Context, paymentID string) (payments.PaymentData, error)
}

type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, ev domain.PaymentEvent) (domain.ReconciliationResult, error)
}

type Alerter interface {
	UnresolvablePayment(ctx context.Context, webhookID string, ev domain.PaymentEvent)
}

// WebhookService turns verified provider deliveries into reconciled payment
// rows and keeps an audit record of each delivery.
type WebhookService struct {
	Verifier   WebhookVerifier
	Lookup     PaymentLookup
	Reconciler PaymentEventHandler
	Events     WebhookEventsStore
	Alerts     Alerter
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *WebhookService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *WebhookService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Process verifies and applies one delivery. Unverifiable deliveries return
// an error wrapping domain.ErrSignatureInvalid and touch nothing. Unresolvable
// payments are recorded and alerted on but are not an error, so the provider
// stops retrying them.
func (s *WebhookService) Process(ctx context.Context, h http.Header, body []byte) (domain.ReconciliationResult, error) {
	if s.Verifier == nil {
		return domain.ReconciliationResult{}, domain.ErrUnavailable
	}
	if err := s.Verifier.Verify(h, body); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return domain.ReconciliationResult{}, err
	}

	rec := domain.WebhookEvent{
		WebhookID:  h.Get(payments.HeaderWebhookID),
		Payload:    body,
		ReceivedAt: s.now(),
	}

	payload, err := payments.ParseWebhook(body)
	if err != nil {
		rec.EventType = "unknown"
		rec.Outcome = domain.OutcomeError
		rec.Error = err.Error()
		s.record(ctx, rec)
		metrics.WebhookEventsTotal.WithLabelValues("unknown", string(domain.OutcomeError)).Inc()
		return domain.ReconciliationResult{}, domain.NewValidationError(map[string]string{"body": "malformed webhook payload"})
	}
	rec.EventType = payload.Type

	var fresh *payments.PaymentData
	if payload.IsPaymentEvent() && payload.Data.PaymentID != "" && s.Lookup != nil {
		data, err := s.Lookup.GetPayment(ctx, payload.Data.PaymentID)
		switch {
		case err == nil:
			fresh = &data
		case errors.Is(err, payments.ErrNotConfigured):
		default:
			s.logger().Warn("payments: refetch payment failed, using payload",
				"err", err, "payment_id", payload.Data.PaymentID)
		}
	}

	ev := payload.Event(fresh)
	ev.DeliveryID = rec.WebhookID
	rec.PaymentID = ev.PaymentID
	rec.PayerEmail = domain.NormalizeEmail(ev.PayerEmail)

	res, err := s.Reconciler.HandlePaymentEvent(ctx, ev)
	processed := s.now()
	rec.ProcessedAt = &processed
	switch {
	case err == nil:
		rec.Outcome = res.Outcome
		if rec.PaymentID == "" {
			rec.PaymentID = res.PaymentID
		}
	case errors.Is(err, domain.ErrUnresolvable):
		rec.Outcome = domain.OutcomeUnresolvable
		rec.Error = res.Message
		s.logger().Error("payments: unresolvable payment event",
			"webhook_id", rec.WebhookID, "type", ev.Type, "payment_id", ev.PaymentID)
		if s.Alerts != nil {
			s.Alerts.UnresolvablePayment(ctx, rec.WebhookID, ev)
		}
		err = nil
	default:
		rec.Outcome = domain.OutcomeError
		rec.Error = err.Error()
		rec.ProcessedAt = nil
	}
	metrics.WebhookEventsTotal.WithLabelValues(payload.Type, string(rec.Outcome)).Inc()

	if recErr := s.Events.RecordWebhookEvent(ctx, rec); recErr != nil {
		if err != nil {
			return domain.ReconciliationResult{}, err
		}
		return domain.ReconciliationResult{}, fmt.Errorf("record webhook event: %w", recErr)
	}
	if err != nil {
		return domain.ReconciliationResult{}, err
	}
	return res, nil
}

func (s *WebhookService) record(ctx context.Context, rec domain.WebhookEvent) {
	if err := s.Events.RecordWebhookEvent(ctx, rec); err != nil {
		s.logger().Error("payments: record webhook event failed", "err", err, "webhook_id", rec.WebhookID)
	}
}
