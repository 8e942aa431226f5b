package httpapi

import (
	"net/http"
	"time"

	"quackquery/internal/domain"
)

func (a *api) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	e, err := a.entitlementSvc.Resolve(r.Context(), u.ID, u.Email)
	if err != nil {
		a.fail(w, r, "entitlement: resolve failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, e)
}

type desktopTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *api) handleDesktopToken(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	if a.desktopTokens == nil {
		WriteDomainError(w, domain.ErrUnavailable)
		return
	}

	token, exp, err := a.desktopTokens.Issue(u.ID, u.Email)
	if err != nil {
		a.fail(w, r, "desktop: issue token failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, desktopTokenResponse{Token: token, ExpiresAt: exp})
}

func (a *api) handleDesktopStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentDesktopClaims(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	st, err := a.entitlementSvc.DesktopStatus(r.Context(), claims.Subject, claims.Email)
	if err != nil {
		a.fail(w, r, "desktop: status failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, st)
}
