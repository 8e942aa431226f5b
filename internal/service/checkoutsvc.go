package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quackquery/internal/domain"
	"quackquery/internal/payments"
)

type PaymentCreator interface {
	CreatePayment(ctx context.Context, in payments.CreatePaymentRequest) (payments.CreatePaymentResponse, error)
}

type EntitlementResolver interface {
	Resolve(ctx context.Context, userID, email string) (domain.Entitlement, error)
}

type CheckoutService struct {
	Entitlements EntitlementResolver
	Provider     PaymentCreator
	Payments     PaymentsStore
	ProductID    string
	ReturnURL    string
}

type CheckoutInput struct {
	Billing   payments.Billing
	Customer  *payments.Customer
	ProductID string
	Quantity  int
}

type CheckoutResult struct {
	PaymentID   string `json:"paymentId"`
	PaymentLink string `json:"paymentLink"`
}

// Start opens a hosted checkout for the user. The payment row is recorded as
// pending so a late failure event has a row to land on.
func (s *CheckoutService) Start(ctx context.Context, u domain.User, in CheckoutInput) (CheckoutResult, error) {
	if s.Provider == nil {
		return CheckoutResult{}, domain.ErrUnavailable
	}

	e, err := s.Entitlements.Resolve(ctx, u.ID, u.Email)
	if err != nil {
		return CheckoutResult{}, err
	}
	if e.LifetimeAccess {
		return CheckoutResult{}, domain.ErrAlreadyPurchased
	}

	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		productID = s.ProductID
	}
	fields := map[string]string{}
	if productID == "" {
		fields["productId"] = "required"
	}
	if strings.TrimSpace(in.Billing.Country) == "" {
		fields["billing.country"] = "required"
	}
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > 10 {
		fields["quantity"] = "must be between 1 and 10"
	}
	if len(fields) > 0 {
		return CheckoutResult{}, domain.NewValidationError(fields)
	}

	customer := payments.Customer{Email: u.Email, Name: u.Name}
	if in.Customer != nil {
		if v := domain.NormalizeEmail(in.Customer.Email); v != "" {
			customer.Email = v
		}
		if v := strings.TrimSpace(in.Customer.Name); v != "" {
			customer.Name = v
		}
	}

	resp, err := s.Provider.CreatePayment(ctx, payments.CreatePaymentRequest{
		Billing:     in.Billing,
		Customer:    customer,
		ProductCart: []payments.ProductItem{{ProductID: productID, Quantity: quantity}},
		PaymentLink: true,
		ReturnURL:   s.ReturnURL,
		Metadata:    map[string]string{"user_id": u.ID},
	})
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			return CheckoutResult{}, domain.ErrUnavailable
		}
		return CheckoutResult{}, fmt.Errorf("create payment: %w", err)
	}

	if _, _, err := s.Payments.UpsertPayment(ctx, u.ID, resp.PaymentID, domain.PaymentStatusPending); err != nil {
		return CheckoutResult{}, fmt.Errorf("record pending payment: %w", err)
	}
	return CheckoutResult{PaymentID: resp.PaymentID, PaymentLink: resp.PaymentLink}, nil
}
