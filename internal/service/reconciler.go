package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"quackquery/internal/domain"
	"quackquery/internal/metrics"
)

// PaymentReconciler folds payment provider events into payment rows and
// links payments made before signup to the account created afterwards.
type PaymentReconciler struct {
	Users    UsersStore
	Payments PaymentsStore
	Pending  PendingPaymentsStore
	Logger   *slog.Logger
	NewID    func() string
}

func (r *PaymentReconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *PaymentReconciler) newID() string {
	if r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

// HandlePaymentEvent applies one event. Replaying the same event converges on
// the same rows; an event without a payment id is keyed by its delivery id. A success or failure event that names neither an existing
// user nor an email returns domain.ErrUnresolvable.
func (r *PaymentReconciler) HandlePaymentEvent(ctx context.Context, ev domain.PaymentEvent) (domain.ReconciliationResult, error) {
	if !ev.Type.IsSuccess() && !ev.Type.IsFailure() {
		return domain.ReconciliationResult{
			Outcome:   domain.OutcomeIgnored,
			PaymentID: ev.PaymentID,
			Message:   fmt.Sprintf("event type %q ignored", ev.Type),
		}, nil
	}

	email := domain.NormalizeEmail(ev.PayerEmail)
	paymentID := ev.PaymentID
	switch {
	case paymentID != "":
	case ev.DeliveryID != "":
		paymentID = "wh_" + ev.DeliveryID
	default:
		paymentID = r.newID()
	}

	u, found, err := r.resolveUser(ctx, email, ev.MetadataUserID)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	if !found && email == "" {
		r.logger().Warn("payments: event has no user and no email",
			"type", ev.Type, "payment_id", ev.PaymentID, "metadata_user_id", ev.MetadataUserID)
		return domain.ReconciliationResult{
			Outcome:   domain.OutcomeUnresolvable,
			PaymentID: paymentID,
			Message:   "payment names no known user and no email",
		}, domain.ErrUnresolvable
	}

	if ev.Type.IsSuccess() {
		if found {
			return r.applyToUser(ctx, u, paymentID, domain.PaymentStatusActive)
		}
		return r.holdForSignup(ctx, email, paymentID)
	}

	status := ev.Type.FailureStatus()
	if found {
		return r.applyToUser(ctx, u, paymentID, status)
	}
	if _, err := r.Pending.UpsertPendingPayment(ctx, paymentID, email, status); err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("record pending failure: %w", err)
	}
	return domain.ReconciliationResult{
		Outcome:   domain.OutcomeApplied,
		PaymentID: paymentID,
		Status:    status,
		Message:   "failure recorded for " + email,
	}, nil
}

// resolveUser prefers the account registered under the payer email over the
// metadata id. A metadata id only counts when it names an existing user.
func (r *PaymentReconciler) resolveUser(ctx context.Context, email, metadataUserID string) (domain.User, bool, error) {
	if email != "" {
		u, err := r.Users.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			if metadataUserID != "" && metadataUserID != u.ID {
				r.logger().Warn("payments: metadata user differs from payer email",
					"metadata_user_id", metadataUserID, "user_id", u.ID)
			}
			return u.User, true, nil
		case !errors.Is(err, domain.ErrNotFound):
			return domain.User{}, false, fmt.Errorf("lookup payer by email: %w", err)
		}
	}

	if metadataUserID != "" {
		u, err := r.Users.GetUserByID(ctx, metadataUserID)
		switch {
		case err == nil:
			return u, true, nil
		case !errors.Is(err, domain.ErrNotFound):
			return domain.User{}, false, fmt.Errorf("lookup payer by id: %w", err)
		}
	}
	return domain.User{}, false, nil
}

func (r *PaymentReconciler) applyToUser(ctx context.Context, u domain.User, paymentID string, status domain.PaymentStatus) (domain.ReconciliationResult, error) {
	p, applied, err := r.Payments.UpsertPayment(ctx, u.ID, paymentID, status)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("upsert payment: %w", err)
	}
	res := domain.ReconciliationResult{
		Outcome:   domain.OutcomeApplied,
		UserID:    u.ID,
		PaymentID: p.ID,
		Status:    p.Status,
		Message:   fmt.Sprintf("payment %s for %s", p.Status, u.Email),
	}
	if !applied {
		res.Message = fmt.Sprintf("kept %s payment, %s ignored", p.Status, status)
	}
	if status == domain.PaymentStatusActive {
		metrics.ReconciledPaymentsTotal.WithLabelValues("webhook").Inc()
	}
	return res, nil
}

func (r *PaymentReconciler) holdForSignup(ctx context.Context, email, paymentID string) (domain.ReconciliationResult, error) {
	if _, err := r.Pending.UpsertPendingPayment(ctx, paymentID, email, domain.PaymentStatusPendingSignup); err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("upsert pending payment: %w", err)
	}

	// The payer may have signed up between the lookup and the insert, in
	// which case the signup hook already ran and found nothing to claim.
	u, err := r.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		claimed, err := r.claim(ctx, u.User, "webhook")
		if err != nil {
			return domain.ReconciliationResult{}, err
		}
		if len(claimed) > 0 {
			return domain.ReconciliationResult{
				Outcome:   domain.OutcomeApplied,
				UserID:    u.ID,
				PaymentID: paymentID,
				Status:    domain.PaymentStatusActive,
				Message:   "payment activated for " + email,
			}, nil
		}
		// Nothing left to claim: a concurrent signup hook or delivery got
		// there first. Report the row the user actually has.
		p, err := r.Payments.LatestPaymentForUser(ctx, u.ID)
		switch {
		case err == nil:
			return domain.ReconciliationResult{
				Outcome:   domain.OutcomeApplied,
				UserID:    u.ID,
				PaymentID: p.ID,
				Status:    p.Status,
				Message:   "payment already linked to " + email,
			}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return domain.ReconciliationResult{}, fmt.Errorf("read payer payment: %w", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ReconciliationResult{}, fmt.Errorf("recheck payer: %w", err)
	}

	return domain.ReconciliationResult{
		Outcome:   domain.OutcomePending,
		PaymentID: paymentID,
		Status:    domain.PaymentStatusPendingSignup,
		Message:   "payment held until " + email + " signs up",
	}, nil
}

// ReconcileUser claims every unclaimed pending payment for the user's email.
// Running it again finds nothing and changes nothing.
func (r *PaymentReconciler) ReconcileUser(ctx context.Context, u domain.User) ([]domain.ReconciledPayment, error) {
	return r.claim(ctx, u, "signup")
}

func (r *PaymentReconciler) claim(ctx context.Context, u domain.User, path string) ([]domain.ReconciledPayment, error) {
	email := domain.NormalizeEmail(u.Email)
	if email == "" {
		return nil, nil
	}
	claimed, err := r.Pending.ClaimPendingPayments(ctx, u.ID, email)
	if err != nil {
		return nil, fmt.Errorf("claim pending payments: %w", err)
	}
	if len(claimed) > 0 {
		metrics.ReconciledPaymentsTotal.WithLabelValues(path).Add(float64(len(claimed)))
		r.logger().Info("payments: linked pending payments", "user_id", u.ID, "count", len(claimed), "path", path)
	}
	return claimed, nil
}
