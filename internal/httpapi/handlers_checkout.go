package httpapi

import (
	"net/http"

	"quackquery/internal/domain"
	"quackquery/internal/payments"
	"quackquery/internal/service"
)

type checkoutRequest struct {
	Billing   payments.Billing  `json:"billing"`
	Customer  *checkoutCustomer `json:"customer,omitempty"`
	ProductID string            `json:"productId,omitempty"`
	Quantity  int               `json:"quantity,omitempty"`
}

type checkoutCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *api) handleCheckout(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	in := service.CheckoutInput{Billing: req.Billing, ProductID: req.ProductID, Quantity: req.Quantity}
	if req.Customer != nil {
		in.Customer = &payments.Customer{Name: req.Customer.Name, Email: req.Customer.Email}
	}

	res, err := a.checkoutSvc.Start(r.Context(), u, in)
	if err != nil {
		a.fail(w, r, "checkout: start failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
