package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"quackquery/internal/domain"
	"quackquery/internal/metrics"
)

type AdminService struct {
	Users      UsersStore
	Sudo       SudoStore
	Settings   SettingsStore
	Payments   PaymentsStore
	Pending    PendingPaymentsStore
	Events     WebhookEventsStore
	Reconciler *PaymentReconciler
	Logger     *slog.Logger
}

func (s *AdminService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

type SetupStatus struct {
	HasAdmins          bool   `json:"hasAdmins"`
	CurrentUserIsAdmin bool   `json:"currentUserIsAdmin"`
	CurrentUserEmail   string `json:"currentUserEmail"`
	CanMakeFirstAdmin  bool   `json:"canMakeFirstAdmin"`
}

func (s *AdminService) SetupStatus(ctx context.Context, u domain.User) (SetupStatus, error) {
	n, err := s.Users.CountAdmins(ctx)
	if err != nil {
		return SetupStatus{}, err
	}
	return SetupStatus{
		HasAdmins:          n > 0,
		CurrentUserIsAdmin: u.IsAdmin,
		CurrentUserEmail:   u.Email,
		CanMakeFirstAdmin:  n == 0,
	}, nil
}

// ClaimFirstAdmin promotes u when no admin exists yet. Concurrent claims are
// settled by the store; losers get domain.ErrAdminExists.
func (s *AdminService) ClaimFirstAdmin(ctx context.Context, u domain.User) (domain.User, error) {
	admin, err := s.Users.ClaimFirstAdmin(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	s.logger().Info("admin: first admin claimed", "user_id", admin.ID, "email", admin.Email)
	return admin, nil
}

func (s *AdminService) ListSudo(ctx context.Context) ([]domain.SudoUser, error) {
	return s.Sudo.ListSudo(ctx)
}

func (s *AdminService) AddSudo(ctx context.Context, email string) (domain.SudoUser, error) {
	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return domain.SudoUser{}, domain.NewValidationError(map[string]string{"email": "must be a valid email"})
	}
	su, err := s.Sudo.InsertSudo(ctx, email)
	if err != nil {
		return domain.SudoUser{}, err
	}
	s.logger().Info("admin: sudo user added", "email", email)
	return su, nil
}

func (s *AdminService) RemoveSudo(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return domain.NewValidationError(map[string]string{"email": "must be a valid email"})
	}
	if err := s.Sudo.DeleteSudo(ctx, email); err != nil {
		return err
	}
	s.logger().Info("admin: sudo user removed", "email", email)
	return nil
}

func (s *AdminService) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	return s.Settings.LoadSettings(ctx)
}

func (s *AdminService) UpdateSettings(ctx context.Context, p domain.SettingsPatch) (domain.AppSettings, error) {
	if p.MaxFreeDownloads != nil && *p.MaxFreeDownloads < 0 {
		return domain.AppSettings{}, domain.NewValidationError(map[string]string{"maxFreeDownloads": "must be >= 0"})
	}
	cur, err := s.Settings.LoadSettings(ctx)
	if err != nil {
		return domain.AppSettings{}, err
	}
	return s.Settings.SaveSettings(ctx, cur.Apply(p))
}

type SweepResult struct {
	TotalPending int                        `json:"totalPending"`
	Activated    int                        `json:"activated"`
	Results      []domain.ReconciledPayment `json:"results"`
}

// ActivatePending links every unclaimed pending_signup payment whose email
// now belongs to a user.
func (s *AdminService) ActivatePending(ctx context.Context) (SweepResult, error) {
	pending, err := s.Pending.ListUnclaimedPending(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	byEmail := map[string][]domain.PendingPayment{}
	for _, p := range pending {
		if p.Status != domain.PaymentStatusPendingSignup {
			continue
		}
		email := domain.NormalizeEmail(p.Email)
		byEmail[email] = append(byEmail[email], p)
	}
	emails := make([]string, 0, len(byEmail))
	for e := range byEmail {
		emails = append(emails, e)
	}
	sort.Strings(emails)

	out := SweepResult{Results: []domain.ReconciledPayment{}}
	for _, email := range emails {
		rows := byEmail[email]
		out.TotalPending += len(rows)

		u, err := s.Users.GetUserByEmail(ctx, email)
		if errors.Is(err, domain.ErrNotFound) {
			for _, p := range rows {
				out.Results = append(out.Results, domain.ReconciledPayment{PaymentID: p.ID, Email: email, Status: "user_not_found"})
			}
			continue
		}
		if err != nil {
			return SweepResult{}, err
		}

		claimed, err := s.Reconciler.claim(ctx, u.User, "sweep")
		if err != nil {
			return SweepResult{}, err
		}
		out.Activated += len(claimed)
		out.Results = append(out.Results, claimed...)
	}
	s.logger().Info("admin: pending sweep done", "total_pending", out.TotalPending, "activated", out.Activated)
	return out, nil
}

// Grant gives lifetime access to an existing user by email or id.
func (s *AdminService) Grant(ctx context.Context, email, userID string) (domain.Payment, error) {
	email = domain.NormalizeEmail(email)
	userID = strings.TrimSpace(userID)

	var (
		u   domain.User
		err error
	)
	switch {
	case email != "":
		var uw domain.UserWithPassword
		uw, err = s.Users.GetUserByEmail(ctx, email)
		u = uw.User
	case userID != "":
		u, err = s.Users.GetUserByID(ctx, userID)
	default:
		return domain.Payment{}, domain.NewValidationError(map[string]string{"email": "email or userId required"})
	}
	if err != nil {
		return domain.Payment{}, err
	}

	p, _, err := s.Payments.UpsertPayment(ctx, u.ID, "grant_"+uuid.NewString(), domain.PaymentStatusActive)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("grant payment: %w", err)
	}
	metrics.ReconciledPaymentsTotal.WithLabelValues("grant").Inc()
	s.logger().Info("admin: lifetime access granted", "user_id", u.ID, "payment_id", p.ID)
	return p, nil
}

func (s *AdminService) Stats(ctx context.Context) (domain.AdminStats, error) {
	return s.Payments.Stats(ctx)
}

func (s *AdminService) ListPayments(ctx context.Context, limit int) ([]domain.PaymentListItem, error) {
	return s.Payments.ListPayments(ctx, clampLimit(limit))
}

func (s *AdminService) ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]domain.WebhookEvent, error) {
	outcome = strings.TrimSpace(outcome)
	switch domain.ReconciliationOutcome(outcome) {
	case "", domain.OutcomeApplied, domain.OutcomePending, domain.OutcomeIgnored, domain.OutcomeUnresolvable, domain.OutcomeError:
	default:
		return nil, domain.NewValidationError(map[string]string{"outcome": "unknown outcome"})
	}
	return s.Events.ListWebhookEvents(ctx, outcome, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
