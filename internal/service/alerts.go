package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quackquery/internal/domain"
	"quackquery/internal/email"
)

type MailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// OperatorAlerts mails the operator list about payments that need a human.
type OperatorAlerts struct {
	Sender    MailSender
	FromEmail string
	To        []string
	Timeout   time.Duration
	Logger    *slog.Logger
}

func (a *OperatorAlerts) UnresolvablePayment(ctx context.Context, webhookID string, ev domain.PaymentEvent) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if a.Sender == nil || len(a.To) == 0 {
		logger.Warn("alerts: no operator mail configured, unresolvable payment only logged",
			"webhook_id", webhookID, "payment_id", ev.PaymentID)
		return
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	msg := email.Message{
		FromName:  "QuackQuery",
		FromEmail: a.FromEmail,
		To:        a.To,
		Subject:   "Unresolvable payment " + orNone(ev.PaymentID),
		TextBody:  unresolvableBody(webhookID, ev),
	}
	if err := a.Sender.Send(ctx, msg); err != nil {
		logger.Error("alerts: send operator mail failed", "err", err, "webhook_id", webhookID)
	}
}

func unresolvableBody(webhookID string, ev domain.PaymentEvent) string {
	var b strings.Builder
	b.WriteString("A payment event could not be linked to any user and carried no payer email.\n\n")
	fmt.Fprintf(&b, "webhook id:       %s\n", orNone(webhookID))
	fmt.Fprintf(&b, "event type:       %s\n", ev.Type)
	fmt.Fprintf(&b, "payment id:       %s\n", orNone(ev.PaymentID))
	fmt.Fprintf(&b, "metadata user id: %s\n", orNone(ev.MetadataUserID))
	b.WriteString("\nGrant access manually with POST /v1/admin/grant once the payer is identified.\n")
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
