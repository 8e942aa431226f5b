package service

import (
	"context"
	"errors"
	"testing"

	"quackquery/internal/domain"
)

func TestAdminServiceActivatePending(t *testing.T) {
	svc := newServices()
	ctx := context.Background()

	for _, ev := range []domain.PaymentEvent{
		{Type: domain.EventPaymentCompleted, PaymentID: "pay_a", PayerEmail: "a@x.com"},
		{Type: domain.EventPaymentCompleted, PaymentID: "pay_b", PayerEmail: "b@x.com"},
	} {
		if _, err := svc.reconciler.HandlePaymentEvent(ctx, ev); err != nil {
			t.Fatalf("HandlePaymentEvent: %v", err)
		}
	}
	// a@x.com signs up through a path whose hook did not run.
	a := svc.store.AddUser(domain.User{ID: "u-a", Email: "a@x.com"})

	res, err := svc.admin.ActivatePending(ctx)
	if err != nil {
		t.Fatalf("ActivatePending: %v", err)
	}
	if res.TotalPending != 2 || res.Activated != 1 || len(res.Results) != 2 {
		t.Fatalf("unexpected sweep: %+v", res)
	}
	if res.Results[0].Email != "a@x.com" || res.Results[0].Status != "activated" || res.Results[0].UserID != a.ID {
		t.Fatalf("unexpected first result: %+v", res.Results[0])
	}
	if res.Results[1].Email != "b@x.com" || res.Results[1].Status != "user_not_found" {
		t.Fatalf("unexpected second result: %+v", res.Results[1])
	}
	if e := mustResolve(t, svc, a); !e.LifetimeAccess {
		t.Fatalf("expected lifetime access after sweep: %+v", e)
	}

	again, err := svc.admin.ActivatePending(ctx)
	if err != nil {
		t.Fatalf("ActivatePending: %v", err)
	}
	if again.TotalPending != 1 || again.Activated != 0 {
		t.Fatalf("unexpected second sweep: %+v", again)
	}
}

func TestAdminServiceSudoValidation(t *testing.T) {
	svc := newServices()
	ctx := context.Background()

	if _, err := svc.admin.AddSudo(ctx, "nope"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.admin.AddSudo(ctx, "s@x.com"); err != nil {
		t.Fatalf("AddSudo: %v", err)
	}
	if _, err := svc.admin.AddSudo(ctx, "S@X.com"); !errors.Is(err, domain.ErrSudoExists) {
		t.Fatalf("expected ErrSudoExists, got %v", err)
	}
	if err := svc.admin.RemoveSudo(ctx, "other@x.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminServiceUpdateSettingsMerges(t *testing.T) {
	svc := newServices()
	ctx := context.Background()

	on := true
	st, err := svc.admin.UpdateSettings(ctx, domain.SettingsPatch{Maintenance: &on})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if !st.Maintenance || !st.DownloadEnabled || st.MaxFreeDownloads != 3 {
		t.Fatalf("unexpected settings: %+v", st)
	}

	st, err = svc.admin.UpdateSettings(ctx, domain.SettingsPatch{Announcements: []string{"v2 is out"}, HasAnnouncements: true})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if !st.Maintenance || len(st.Announcements) != 1 {
		t.Fatalf("earlier patch lost: %+v", st)
	}

	neg := -1
	if _, err := svc.admin.UpdateSettings(ctx, domain.SettingsPatch{MaxFreeDownloads: &neg}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdminServiceGrant(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	u := svc.store.AddUser(domain.User{ID: "u-g", Email: "g@x.com"})

	p, err := svc.admin.Grant(ctx, "G@x.com", "")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if p.UserID != u.ID || p.Status != domain.PaymentStatusActive {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if _, err := svc.admin.Grant(ctx, "", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.admin.Grant(ctx, "", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdminServiceSetupStatus(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	u := svc.store.AddUser(domain.User{ID: "u-1", Email: "one@x.com"})

	st, err := svc.admin.SetupStatus(ctx, u)
	if err != nil {
		t.Fatalf("SetupStatus: %v", err)
	}
	if st.HasAdmins || !st.CanMakeFirstAdmin || st.CurrentUserEmail != "one@x.com" {
		t.Fatalf("unexpected status: %+v", st)
	}

	admin, err := svc.admin.ClaimFirstAdmin(ctx, u)
	if err != nil {
		t.Fatalf("ClaimFirstAdmin: %v", err)
	}
	st, err = svc.admin.SetupStatus(ctx, admin)
	if err != nil {
		t.Fatalf("SetupStatus: %v", err)
	}
	if !st.HasAdmins || st.CanMakeFirstAdmin || !st.CurrentUserIsAdmin {
		t.Fatalf("unexpected status after claim: %+v", st)
	}
}

func TestAdminServiceListWebhookEventsRejectsUnknownOutcome(t *testing.T) {
	svc := newServices()
	if _, err := svc.admin.ListWebhookEvents(context.Background(), "weird", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdminServiceStatsAndPaymentList(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	paid := svc.store.AddUser(domain.User{ID: "u-p", Email: "p@x.com", Name: "Paid"})
	svc.store.AddUser(domain.User{ID: "u-f", Email: "f@x.com"})

	for _, ev := range []domain.PaymentEvent{
		{Type: domain.EventPaymentCompleted, PaymentID: "pay_p", PayerEmail: "p@x.com"},
		{Type: domain.EventPaymentFailed, PaymentID: "pay_f", PayerEmail: "f@x.com"},
		{Type: domain.EventPaymentCompleted, PaymentID: "pay_c", PayerEmail: "c@x.com"},
		{Type: domain.EventPaymentFailed, PaymentID: "pay_d", PayerEmail: "d@x.com"},
	} {
		if _, err := svc.reconciler.HandlePaymentEvent(ctx, ev); err != nil {
			t.Fatalf("HandlePaymentEvent %s: %v", ev.PaymentID, err)
		}
	}

	st, err := svc.admin.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := domain.AdminStats{TotalUsers: 2, TotalPurchasedUsers: 1, TotalPendingSignup: 1, TotalFailedPayments: 1}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}

	list, err := svc.admin.ListPayments(ctx, 0)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	byID := map[string]domain.PaymentListItem{}
	for _, item := range list {
		byID[item.PaymentID] = item
	}
	if len(list) != 4 || len(byID) != 4 {
		t.Fatalf("expected 4 listed payments, got %+v", list)
	}
	if got := byID["pay_p"]; got.UserID != paid.ID || got.Name != "Paid" || got.Status != domain.PaymentStatusActive {
		t.Fatalf("unexpected paid row: %+v", got)
	}
	if got := byID["pay_c"]; got.UserID != "" || got.Email != "c@x.com" || got.Status != domain.PaymentStatusPendingSignup {
		t.Fatalf("unexpected pending row: %+v", got)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatalf("payments not newest first: %+v", list)
		}
	}

	pending, err := svc.store.ListUnclaimedPending(ctx)
	if err != nil {
		t.Fatalf("ListUnclaimedPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "pay_c" {
		t.Fatalf("only pending_signup rows are sweepable, got %+v", pending)
	}
}
