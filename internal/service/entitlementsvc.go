package service

import (
	"context"
	"errors"
	"fmt"

	"quackquery/internal/domain"
	"quackquery/internal/metrics"
)

type EntitlementService struct {
	Users    UsersStore
	Sudo     SudoStore
	Payments PaymentsStore
}

// Resolve computes the download entitlement of a signed-in user. Store
// failures are returned as errors and never read as a free or paid plan.
func (s *EntitlementService) Resolve(ctx context.Context, userID, email string) (domain.Entitlement, error) {
	e, err := s.resolve(ctx, userID, email)
	if err != nil {
		metrics.EntitlementChecksTotal.WithLabelValues("error").Inc()
		return domain.Entitlement{}, err
	}
	result := "denied"
	if e.CanDownload {
		result = "granted"
	}
	metrics.EntitlementChecksTotal.WithLabelValues(result).Inc()
	return e, nil
}

func (s *EntitlementService) resolve(ctx context.Context, userID, email string) (domain.Entitlement, error) {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("entitlement user: %w", err)
	}

	isSudo := false
	if email = domain.NormalizeEmail(email); email != "" {
		isSudo, err = s.Sudo.IsSudo(ctx, email)
		if err != nil {
			return domain.Entitlement{}, fmt.Errorf("entitlement sudo: %w", err)
		}
	}

	var latest *domain.Payment
	p, err := s.Payments.LatestPaymentForUser(ctx, u.ID)
	switch {
	case err == nil:
		latest = &p
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Entitlement{}, fmt.Errorf("entitlement payment: %w", err)
	}

	return domain.Decide(u.IsAdmin, isSudo, latest), nil
}

type DesktopStatus struct {
	IsPremium  bool `json:"isPremium"`
	IsSudoUser bool `json:"isSudoUser"`
	IsAdmin    bool `json:"isAdmin"`
}

func (s *EntitlementService) DesktopStatus(ctx context.Context, userID, email string) (DesktopStatus, error) {
	e, err := s.Resolve(ctx, userID, email)
	if err != nil {
		return DesktopStatus{}, err
	}
	return DesktopStatus{
		IsPremium:  e.CanDownload,
		IsSudoUser: e.IsSudo,
		IsAdmin:    e.IsAdmin,
	}, nil
}
