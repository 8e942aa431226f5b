package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending          PaymentStatus = "pending"
	PaymentStatusPendingSignup    PaymentStatus = "pending_signup"
	PaymentStatusPendingUserMatch PaymentStatus = "pending_user_match"
	PaymentStatusActive           PaymentStatus = "active"
	PaymentStatusCompleted        PaymentStatus = "completed"
	PaymentStatusFailed           PaymentStatus = "failed"
	PaymentStatusCancelled        PaymentStatus = "cancelled"
)

// GrantsAccess reports whether a payment in this status carries lifetime access.
func (s PaymentStatus) GrantsAccess() bool {
	return s == PaymentStatusActive || s == PaymentStatusCompleted
}

// Payment is the single payment row of a real user.
type Payment struct {
	ID        string
	UserID    string
	Status    PaymentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingPayment is a completed payment whose payer had no account yet.
// It is claimed by the first user that signs up with the same email.
type PendingPayment struct {
	ID        string
	Email     string
	Status    PaymentStatus
	ClaimedBy string
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentEventType string

const (
	EventPaymentCompleted PaymentEventType = "payment.completed"
	EventPaymentSucceeded PaymentEventType = "payment.succeeded"
	EventPaymentFailed    PaymentEventType = "payment.failed"
	EventPaymentCancelled PaymentEventType = "payment.cancelled"
)

func (t PaymentEventType) IsSuccess() bool {
	return t == EventPaymentCompleted || t == EventPaymentSucceeded
}

func (t PaymentEventType) IsFailure() bool {
	return t == EventPaymentFailed || t == EventPaymentCancelled
}

// FailureStatus maps payment.failed/payment.cancelled to the stored status.
func (t PaymentEventType) FailureStatus() PaymentStatus {
	if t == EventPaymentCancelled {
		return PaymentStatusCancelled
	}
	return PaymentStatusFailed
}

type PaymentEvent struct {
	Type           PaymentEventType
	PaymentID      string
	PayerEmail     string
	MetadataUserID string
	// DeliveryID is the webhook id of the delivery that carried the event.
	// Retries of one delivery share it.
	DeliveryID string
}

type ReconciliationOutcome string

const (
	OutcomeApplied      ReconciliationOutcome = "applied"
	OutcomePending      ReconciliationOutcome = "pending"
	OutcomeIgnored      ReconciliationOutcome = "ignored"
	OutcomeUnresolvable ReconciliationOutcome = "unresolvable"
	OutcomeError        ReconciliationOutcome = "error"
)

type ReconciliationResult struct {
	Outcome   ReconciliationOutcome `json:"outcome"`
	UserID    string                `json:"userId,omitempty"`
	PaymentID string                `json:"paymentId,omitempty"`
	Status    PaymentStatus         `json:"status,omitempty"`
	Message   string                `json:"message"`
}

// ReconciledPayment describes one pending payment linked to a user.
type ReconciledPayment struct {
	PaymentID string `json:"paymentId"`
	Email     string `json:"email"`
	UserID    string `json:"userId,omitempty"`
	Status    string `json:"status"`
}

type PaymentListItem struct {
	PaymentID string        `json:"paymentId"`
	UserID    string        `json:"userId,omitempty"`
	Email     string        `json:"email"`
	Name      string        `json:"name,omitempty"`
	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"date"`
}
