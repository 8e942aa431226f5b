package service

import (
	"context"
	"fmt"

	"quackquery/internal/domain"
	"quackquery/internal/metrics"
	"quackquery/internal/releases"
)

var (
	ErrMaintenance       = fmt.Errorf("%w: maintenance", domain.ErrUnavailable)
	ErrDownloadsDisabled = fmt.Errorf("%w: downloads disabled", domain.ErrUnavailable)
	ErrPaymentRequired   = fmt.Errorf("%w: payment required", domain.ErrForbidden)
)

type DownloadService struct {
	Settings     SettingsStore
	Entitlements EntitlementResolver
	Source       releases.Source
}

// DownloadURL returns where the user may fetch the installer for p.
func (s *DownloadService) DownloadURL(ctx context.Context, u domain.User, p releases.Platform) (string, error) {
	url, result, err := s.downloadURL(ctx, u, p)
	metrics.DownloadsTotal.WithLabelValues(string(p), result).Inc()
	return url, err
}

func (s *DownloadService) downloadURL(ctx context.Context, u domain.User, p releases.Platform) (string, string, error) {
	st, err := s.Settings.LoadSettings(ctx)
	if err != nil {
		return "", "error", err
	}
	if st.Maintenance {
		return "", "maintenance", ErrMaintenance
	}
	if !st.DownloadEnabled {
		return "", "disabled", ErrDownloadsDisabled
	}

	e, err := s.Entitlements.Resolve(ctx, u.ID, u.Email)
	if err != nil {
		return "", "error", err
	}
	if !e.CanDownload {
		return "", "denied", ErrPaymentRequired
	}

	url, err := s.Source.DownloadURL(ctx, p)
	if err != nil {
		return "", "error", fmt.Errorf("release url: %w", err)
	}
	return url, "granted", nil
}
