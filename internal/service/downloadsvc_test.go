package service

import (
	"context"
	"errors"
	"testing"

	"quackquery/internal/domain"
	"quackquery/internal/releases"
)

type stubSource struct{}

func (stubSource) DownloadURL(_ context.Context, p releases.Platform) (string, error) {
	return "https://dl.example/" + string(p), nil
}

func TestDownloadServiceGate(t *testing.T) {
	svc := newServices()
	ctx := context.Background()
	dl := &DownloadService{
		Settings:     svc.store,
		Entitlements: svc.entitlements,
		Source:       stubSource{},
	}
	paid := svc.store.AddUser(domain.User{ID: "u-paid", Email: "paid@x.com"})
	free := svc.store.AddUser(domain.User{ID: "u-free", Email: "free@x.com"})
	if _, err := svc.admin.Grant(ctx, "paid@x.com", ""); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if _, err := dl.DownloadURL(ctx, free, releases.PlatformWindows); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	url, err := dl.DownloadURL(ctx, paid, releases.PlatformMac)
	if err != nil || url != "https://dl.example/mac" {
		t.Fatalf("DownloadURL: %q %v", url, err)
	}

	off := false
	if _, err := svc.admin.UpdateSettings(ctx, domain.SettingsPatch{DownloadEnabled: &off}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if _, err := dl.DownloadURL(ctx, paid, releases.PlatformMac); !errors.Is(err, ErrDownloadsDisabled) {
		t.Fatalf("expected ErrDownloadsDisabled, got %v", err)
	}

	on := true
	if _, err := svc.admin.UpdateSettings(ctx, domain.SettingsPatch{Maintenance: &on}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if _, err := dl.DownloadURL(ctx, paid, releases.PlatformMac); !errors.Is(err, ErrMaintenance) {
		t.Fatalf("expected ErrMaintenance, got %v", err)
	}
}
