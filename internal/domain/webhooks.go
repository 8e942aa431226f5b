package domain

import "time"

type WebhookEvent struct {
	WebhookID   string                `json:"webhookId"`
	EventType   string                `json:"eventType"`
	PaymentID   string                `json:"paymentId,omitempty"`
	PayerEmail  string                `json:"payerEmail,omitempty"`
	Outcome     ReconciliationOutcome `json:"outcome"`
	Error       string                `json:"error,omitempty"`
	Payload     []byte                `json:"-"`
	ReceivedAt  time.Time             `json:"receivedAt"`
	ProcessedAt *time.Time            `json:"processedAt,omitempty"`
}

type AdminStats struct {
	TotalUsers          int `json:"totalUsers"`
	TotalAdminUsers     int `json:"totalAdminUsers"`
	TotalSudoUsers      int `json:"totalSudoUsers"`
	TotalPurchasedUsers int `json:"totalPurchasedUsers"`
	TotalPendingSignup  int `json:"totalPendingSignup"`
	TotalFailedPayments int `json:"totalFailedPayments"`
}
