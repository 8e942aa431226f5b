package domain

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type Entitlement struct {
	CanDownload     bool       `json:"canDownload"`
	Plan            Plan       `json:"plan"`
	LifetimeAccess  bool       `json:"lifetimeAccess"`
	IsSudo          bool       `json:"isSudo"`
	IsAdmin         bool       `json:"isAdmin"`
	RequiresPayment bool       `json:"requiresPayment"`
	PurchaseDate    *time.Time `json:"purchaseDate,omitempty"`
}

// Decide computes the entitlement from already loaded facts. latest is the
// most recently created payment row of the user, or nil when there is none.
func Decide(isAdmin, isSudo bool, latest *Payment) Entitlement {
	e := Entitlement{
		IsAdmin: isAdmin,
		IsSudo:  isSudo,
		Plan:    PlanFree,
	}
	if latest != nil && latest.Status.GrantsAccess() {
		e.LifetimeAccess = true
		e.Plan = PlanPro
		created := latest.CreatedAt
		e.PurchaseDate = &created
	}
	e.CanDownload = e.LifetimeAccess || e.IsSudo || e.IsAdmin
	e.RequiresPayment = !e.CanDownload
	return e
}
