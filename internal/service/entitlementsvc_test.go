package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"quackquery/internal/domain"
)

type stubSudoStore struct {
	t *testing.T

	isSudoFunc func(context.Context, string) (bool, error)
}

func (s *stubSudoStore) IsSudo(ctx context.Context, email string) (bool, error) {
	if s.isSudoFunc != nil {
		return s.isSudoFunc(ctx, email)
	}
	s.t.Fatalf("IsSudo called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubSudoStore) InsertSudo(context.Context, string) (domain.SudoUser, error) {
	s.t.Fatalf("InsertSudo called unexpectedly")
	return domain.SudoUser{}, errors.New("unexpected call")
}

func (s *stubSudoStore) DeleteSudo(context.Context, string) error {
	s.t.Fatalf("DeleteSudo called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubSudoStore) ListSudo(context.Context) ([]domain.SudoUser, error) {
	s.t.Fatalf("ListSudo called unexpectedly")
	return nil, errors.New("unexpected call")
}

type stubPaymentsStore struct {
	t *testing.T

	latestPaymentFunc func(context.Context, string) (domain.Payment, error)
	upsertPaymentFunc func(context.Context, string, string, domain.PaymentStatus) (domain.Payment, bool, error)
}

func (s *stubPaymentsStore) LatestPaymentForUser(ctx context.Context, userID string) (domain.Payment, error) {
	if s.latestPaymentFunc != nil {
		return s.latestPaymentFunc(ctx, userID)
	}
	s.t.Fatalf("LatestPaymentForUser called unexpectedly")
	return domain.Payment{}, errors.New("unexpected call")
}

func (s *stubPaymentsStore) UpsertPayment(ctx context.Context, userID, paymentID string, status domain.PaymentStatus) (domain.Payment, bool, error) {
	if s.upsertPaymentFunc != nil {
		return s.upsertPaymentFunc(ctx, userID, paymentID, status)
	}
	s.t.Fatalf("UpsertPayment called unexpectedly")
	return domain.Payment{}, false, errors.New("unexpected call")
}

func (s *stubPaymentsStore) ListPayments(context.Context, int) ([]domain.PaymentListItem, error) {
	s.t.Fatalf("ListPayments called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubPaymentsStore) Stats(context.Context) (domain.AdminStats, error) {
	s.t.Fatalf("Stats called unexpectedly")
	return domain.AdminStats{}, errors.New("unexpected call")
}

func TestEntitlementServiceStoreFailuresAreErrors(t *testing.T) {
	errDB := errors.New("db down")
	user := domain.User{ID: "u1", Email: "a@x.com"}
	okUser := func(context.Context, string) (domain.User, error) { return user, nil }
	notSudo := func(context.Context, string) (bool, error) { return false, nil }

	cases := []struct {
		name     string
		users    func(context.Context, string) (domain.User, error)
		sudo     func(context.Context, string) (bool, error)
		payments func(context.Context, string) (domain.Payment, error)
	}{
		{name: "users", users: func(context.Context, string) (domain.User, error) { return domain.User{}, errDB }},
		{name: "sudo", users: okUser, sudo: func(context.Context, string) (bool, error) { return true, errDB }},
		{name: "payments", users: okUser, sudo: notSudo, payments: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{}, errDB
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &EntitlementService{
				Users:    &stubUsersStore{t: t, getUserByIDFunc: tc.users},
				Sudo:     &stubSudoStore{t: t, isSudoFunc: tc.sudo},
				Payments: &stubPaymentsStore{t: t, latestPaymentFunc: tc.payments},
			}
			e, err := svc.Resolve(context.Background(), user.ID, user.Email)
			if !errors.Is(err, errDB) {
				t.Fatalf("expected wrapped store error, got %v", err)
			}
			if e != (domain.Entitlement{}) {
				t.Fatalf("expected zero entitlement on error, got %+v", e)
			}
		})
	}
}

func TestEntitlementServiceNoPaymentIsFree(t *testing.T) {
	svc := &EntitlementService{
		Users: &stubUsersStore{t: t, getUserByIDFunc: func(context.Context, string) (domain.User, error) {
			return domain.User{ID: "u1", Email: "a@x.com"}, nil
		}},
		Sudo: &stubSudoStore{t: t, isSudoFunc: func(context.Context, string) (bool, error) { return false, nil }},
		Payments: &stubPaymentsStore{t: t, latestPaymentFunc: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{}, domain.ErrNotFound
		}},
	}
	e, err := svc.Resolve(context.Background(), "u1", "a@x.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.CanDownload || !e.RequiresPayment || e.Plan != domain.PlanFree {
		t.Fatalf("unexpected entitlement: %+v", e)
	}
}

type stubPendingStore struct {
	t *testing.T

	upsertPendingFunc func(context.Context, string, string, domain.PaymentStatus) (bool, error)
	claimFunc         func(context.Context, string, string) ([]domain.ReconciledPayment, error)
}

func (s *stubPendingStore) UpsertPendingPayment(ctx context.Context, id, email string, status domain.PaymentStatus) (bool, error) {
	if s.upsertPendingFunc != nil {
		return s.upsertPendingFunc(ctx, id, email, status)
	}
	s.t.Fatalf("UpsertPendingPayment called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubPendingStore) ClaimPendingPayments(ctx context.Context, userID, email string) ([]domain.ReconciledPayment, error) {
	if s.claimFunc != nil {
		return s.claimFunc(ctx, userID, email)
	}
	s.t.Fatalf("ClaimPendingPayments called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubPendingStore) ListUnclaimedPending(context.Context) ([]domain.PendingPayment, error) {
	s.t.Fatalf("ListUnclaimedPending called unexpectedly")
	return nil, errors.New("unexpected call")
}

func TestHoldForSignupReportsPaymentClaimedElsewhere(t *testing.T) {
	user := domain.User{ID: "u-race", Email: "race@x.com"}
	lookups := 0
	rec := &PaymentReconciler{
		Users: &stubUsersStore{t: t, getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
			lookups++
			if lookups == 1 {
				return domain.UserWithPassword{}, domain.ErrNotFound
			}
			return domain.UserWithPassword{User: user}, nil
		}},
		Pending: &stubPendingStore{
			t: t,
			upsertPendingFunc: func(context.Context, string, string, domain.PaymentStatus) (bool, error) {
				return true, nil
			},
			claimFunc: func(context.Context, string, string) ([]domain.ReconciledPayment, error) {
				return nil, nil
			},
		},
		Payments: &stubPaymentsStore{t: t, latestPaymentFunc: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{ID: "pay_race", UserID: user.ID, Status: domain.PaymentStatusActive, CreatedAt: time.Now()}, nil
		}},
	}

	res, err := rec.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		Type:       domain.EventPaymentCompleted,
		PaymentID:  "pay_race",
		PayerEmail: user.Email,
	})
	if err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}
	if res.Outcome != domain.OutcomeApplied || res.Status != domain.PaymentStatusActive || res.Message != "payment already linked to race@x.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
