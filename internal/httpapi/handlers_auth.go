package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"quackquery/internal/auth"
	"quackquery/internal/domain"
)

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsAdmin     bool       `json:"isAdmin"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func writeUser(w http.ResponseWriter, status int, u domain.User) {
	WriteJSON(w, status, userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	u, sessID, err := a.authSvc.Register(r.Context(), req.Email, req.Name, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		a.fail(w, r, "auth: register failed", err)
		return
	}

	a.cookies.SetSession(w, sessID, a.sessionTTL)
	writeUser(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Email = domain.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "required", "password": "required"}))
		return
	}

	now := time.Now()
	ip := clientIP(r)
	if !a.loginLimiter.Allow("ip:"+ip, now) || !a.loginLimiter.Allow("login:"+req.Email, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, sessID, err := a.authSvc.Login(r.Context(), req.Email, req.Password, ip, r.UserAgent())
	if err != nil {
		a.fail(w, r, "auth: login failed", err)
		return
	}

	a.cookies.SetSession(w, sessID, a.sessionTTL)
	writeUser(w, http.StatusOK, u)
}

type idTokenRequest struct {
	IDToken string `json:"id_token"`
}

func (a *api) handleAuthLoginGoogle(w http.ResponseWriter, r *http.Request) {
	a.handleAuthLoginProvider(w, r, auth.ProviderGoogle)
}

func (a *api) handleAuthLoginApple(w http.ResponseWriter, r *http.Request) {
	a.handleAuthLoginProvider(w, r, auth.ProviderApple)
}

func (a *api) handleAuthLoginProvider(w http.ResponseWriter, r *http.Request, provider string) {
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id_token": "required"}))
		return
	}

	u, sessID, err := a.authSvc.LoginWithProvider(r.Context(), provider, req.IDToken, clientIP(r), r.UserAgent())
	if err != nil {
		a.fail(w, r, "auth: "+provider+" login failed", err)
		return
	}

	a.cookies.SetSession(w, sessID, a.sessionTTL)
	writeUser(w, http.StatusOK, u)
}

func (a *api) handleGoogleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if a.googleOAuth == nil {
		WriteDomainError(w, auth.ErrProviderDisabled)
		return
	}
	state, err := auth.NewOAuthState()
	if err != nil {
		a.fail(w, r, "auth: oauth state failed", err)
		return
	}
	a.cookies.SetOAuthState(w, state)
	http.Redirect(w, r, a.googleOAuth.AuthCodeURL(state), http.StatusFound)
}

func (a *api) handleGoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if a.googleOAuth == nil {
		WriteDomainError(w, auth.ErrProviderDisabled)
		return
	}

	q := r.URL.Query()
	want, ok := a.cookies.ConsumeOAuthState(w, r)
	if !ok || want == "" || q.Get("state") != want {
		WriteError(w, http.StatusBadRequest, "invalid_state", "oauth state mismatch")
		return
	}
	if e := q.Get("error"); e != "" {
		WriteError(w, http.StatusUnauthorized, "oauth_denied", e)
		return
	}

	id, err := a.googleOAuth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		a.logger.Warn("auth: google oauth exchange failed", "err", err)
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	_, sessID, err := a.authSvc.LoginWithIdentity(r.Context(), id, clientIP(r), r.UserAgent())
	if err != nil {
		a.fail(w, r, "auth: google oauth login failed", err)
		return
	}

	a.cookies.SetSession(w, sessID, a.sessionTTL)
	http.Redirect(w, r, a.afterLoginURL, http.StatusFound)
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	sessID, ok := CurrentSessionID(r.Context())
	if !ok || sessID == "" {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.authSvc.Logout(r.Context(), sessID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.logger.Warn("auth: revoke session failed", "err", err)
	}
	a.cookies.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeUser(w, http.StatusOK, u)
}
