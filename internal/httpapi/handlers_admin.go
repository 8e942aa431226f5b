package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"quackquery/internal/domain"
)

func (a *api) handleAdminSetupStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	st, err := a.adminSvc.SetupStatus(r.Context(), u)
	if err != nil {
		a.fail(w, r, "admin: setup status failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (a *api) handleAdminSetupClaim(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	admin, err := a.adminSvc.ClaimFirstAdmin(r.Context(), u)
	if err != nil {
		a.fail(w, r, "admin: claim first admin failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userResponse{ID: admin.ID, Email: admin.Email, Name: admin.Name, IsAdmin: admin.IsAdmin, CreatedAt: admin.CreatedAt},
	})
}

func (a *api) handleAdminSudoList(w http.ResponseWriter, r *http.Request) {
	list, err := a.adminSvc.ListSudo(r.Context())
	if err != nil {
		a.fail(w, r, "admin: list sudo failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sudoUsers": list})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (a *api) handleAdminSudoAdd(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	su, err := a.adminSvc.AddSudo(r.Context(), req.Email)
	if err != nil {
		a.fail(w, r, "admin: add sudo failed", err)
		return
	}
	WriteJSON(w, http.StatusCreated, su)
}

// handleAdminSudoRemove takes the email from the path when present,
// otherwise from a JSON body.
func (a *api) handleAdminSudoRemove(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if email == "" {
		var req emailRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
			return
		}
		email = req.Email
	}
	if err := a.adminSvc.RemoveSudo(r.Context(), email); err != nil {
		a.fail(w, r, "admin: remove sudo failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleAdminSettingsGet(w http.ResponseWriter, r *http.Request) {
	st, err := a.adminSvc.GetSettings(r.Context())
	if err != nil {
		a.fail(w, r, "admin: load settings failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (a *api) handleAdminSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeJSONAllowUnknownFields(w, r, &raw); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	st, err := a.adminSvc.UpdateSettings(r.Context(), parseSettingsPatch(raw))
	if err != nil {
		a.fail(w, r, "admin: save settings failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (a *api) handleAdminActivatePending(w http.ResponseWriter, r *http.Request) {
	res, err := a.adminSvc.ActivatePending(r.Context())
	if err != nil {
		a.fail(w, r, "admin: activate pending failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type grantRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

type paymentResponse struct {
	ID        string               `json:"paymentId"`
	UserID    string               `json:"userId"`
	Status    domain.PaymentStatus `json:"status"`
	CreatedAt string               `json:"createdAt"`
}

func (a *api) handleAdminGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	p, err := a.adminSvc.Grant(r.Context(), req.Email, req.UserID)
	if err != nil {
		a.fail(w, r, "admin: grant failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, paymentResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Status:    p.Status,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (a *api) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.adminSvc.Stats(r.Context())
	if err != nil {
		a.fail(w, r, "admin: stats failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (a *api) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	list, err := a.adminSvc.ListPayments(r.Context(), queryLimit(r))
	if err != nil {
		a.fail(w, r, "admin: list payments failed", err)
		return
	}
	if list == nil {
		list = []domain.PaymentListItem{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (a *api) handleAdminWebhookEvents(w http.ResponseWriter, r *http.Request) {
	list, err := a.adminSvc.ListWebhookEvents(r.Context(), r.URL.Query().Get("outcome"), queryLimit(r))
	if err != nil {
		a.fail(w, r, "admin: list webhook events failed", err)
		return
	}
	if list == nil {
		list = []domain.WebhookEvent{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": list})
}

type publicSettingsResponse struct {
	Maintenance     bool     `json:"maintenance"`
	DownloadEnabled bool     `json:"downloadEnabled"`
	Announcements   []string `json:"announcements"`
}

func (a *api) handlePublicSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.adminSvc.GetSettings(r.Context())
	if err != nil {
		a.fail(w, r, "settings: load failed", err)
		return
	}
	ann := st.Announcements
	if ann == nil {
		ann = []string{}
	}
	WriteJSON(w, http.StatusOK, publicSettingsResponse{
		Maintenance:     st.Maintenance,
		DownloadEnabled: st.DownloadEnabled,
		Announcements:   ann,
	})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
