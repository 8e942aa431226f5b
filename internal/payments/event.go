package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quackquery/internal/domain"
)

// WebhookPayload is the envelope the provider posts for payment events.
type WebhookPayload struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	Data      PaymentData `json:"data"`
}

type PaymentData struct {
	PaymentID string            `json:"payment_id"`
	Status    string            `json:"status,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Customer  Customer          `json:"customer"`
}

type Customer struct {
	CustomerID string `json:"customer_id,omitempty"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
}

func ParseWebhook(body []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookPayload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if strings.TrimSpace(p.Type) == "" {
		return WebhookPayload{}, errors.New("webhook payload has no type")
	}
	return p, nil
}

// IsPaymentEvent reports whether the reconciler acts on this event type.
func (p WebhookPayload) IsPaymentEvent() bool {
	t := domain.PaymentEventType(p.Type)
	return t.IsSuccess() || t.IsFailure()
}

// Event flattens the payload into the reconciler's input. Fresh data from
// the payments API, when given, takes precedence over the payload copy.
func (p WebhookPayload) Event(fresh *PaymentData) domain.PaymentEvent {
	data := p.Data
	if fresh != nil {
		if fresh.PaymentID == "" {
			fresh.PaymentID = data.PaymentID
		}
		if fresh.Customer.Email == "" {
			fresh.Customer.Email = data.Customer.Email
		}
		if fresh.Metadata == nil {
			fresh.Metadata = data.Metadata
		}
		data = *fresh
	}
	return domain.PaymentEvent{
		Type:           domain.PaymentEventType(p.Type),
		PaymentID:      strings.TrimSpace(data.PaymentID),
		PayerEmail:     domain.NormalizeEmail(data.Customer.Email),
		MetadataUserID: strings.TrimSpace(data.Metadata["user_id"]),
	}
}
