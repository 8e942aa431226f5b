package service

import (
	"context"
	"time"

	"quackquery/internal/domain"
)

type UsersStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, error)
	CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, name string) (domain.User, error)
	LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) error
	SetLastLogin(ctx context.Context, userID string, when time.Time) error
	CountAdmins(ctx context.Context) (int, error)
	ClaimFirstAdmin(ctx context.Context, userID string) (domain.User, error)
}

type SessionsStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string, when time.Time) error
}

type PaymentsStore interface {
	LatestPaymentForUser(ctx context.Context, userID string) (domain.Payment, error)
	UpsertPayment(ctx context.Context, userID, paymentID string, status domain.PaymentStatus) (domain.Payment, bool, error)
	ListPayments(ctx context.Context, limit int) ([]domain.PaymentListItem, error)
	Stats(ctx context.Context) (domain.AdminStats, error)
}

type PendingPaymentsStore interface {
	UpsertPendingPayment(ctx context.Context, id, email string, status domain.PaymentStatus) (bool, error)
	ClaimPendingPayments(ctx context.Context, userID, email string) ([]domain.ReconciledPayment, error)
	ListUnclaimedPending(ctx context.Context) ([]domain.PendingPayment, error)
}

type SudoStore interface {
	IsSudo(ctx context.Context, email string) (bool, error)
	InsertSudo(ctx context.Context, email string) (domain.SudoUser, error)
	DeleteSudo(ctx context.Context, email string) error
	ListSudo(ctx context.Context) ([]domain.SudoUser, error)
}

type SettingsStore interface {
	LoadSettings(ctx context.Context) (domain.AppSettings, error)
	SaveSettings(ctx context.Context, st domain.AppSettings) (domain.AppSettings, error)
}

type WebhookEventsStore interface {
	RecordWebhookEvent(ctx context.Context, ev domain.WebhookEvent) error
	ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]domain.WebhookEvent, error)
}
