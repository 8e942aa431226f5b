package service

import (
	"time"

	"quackquery/internal/store/memory"
)

type services struct {
	store        *memory.Store
	auth         *AuthService
	entitlements *EntitlementService
	reconciler   *PaymentReconciler
	admin        *AdminService
}

func newServices() services {
	m := memory.New()
	rec := &PaymentReconciler{Users: m, Payments: m, Pending: m}
	return services{
		store: m,
		auth: &AuthService{
			Users:      m,
			Sessions:   m,
			Passwords:  testHasher(),
			Reconciler: rec,
			SessionTTL: time.Hour,
			Now:        func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		},
		entitlements: &EntitlementService{Users: m, Sudo: m, Payments: m},
		reconciler:   rec,
		admin: &AdminService{
			Users:      m,
			Sudo:       m,
			Settings:   m,
			Payments:   m,
			Pending:    m,
			Events:     m,
			Reconciler: rec,
		},
	}
}
