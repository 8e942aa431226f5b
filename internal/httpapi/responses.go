package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quackquery/internal/auth"
	"quackquery/internal/domain"
	"quackquery/internal/service"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{Code: "validation_error", Message: "invalid request", Fields: ve.Fields}})
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrSignatureInvalid):
		WriteError(w, http.StatusBadRequest, "signature_invalid", "webhook signature invalid")
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "email_taken", "email already taken")
	case errors.Is(err, domain.ErrExternalAccountExists):
		WriteError(w, http.StatusConflict, "external_account_exists", "account already linked")
	case errors.Is(err, domain.ErrAdminExists):
		WriteError(w, http.StatusConflict, "admin_exists", "an admin already exists")
	case errors.Is(err, domain.ErrSudoExists):
		WriteError(w, http.StatusConflict, "sudo_exists", "email already on the sudo list")
	case errors.Is(err, domain.ErrAlreadyPurchased):
		WriteError(w, http.StatusConflict, "already_purchased", "lifetime access already purchased")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, service.ErrPaymentRequired):
		WriteJSON(w, http.StatusForbidden, map[string]any{
			"error":           apiError{Code: "payment_required", Message: "lifetime access required"},
			"requiresPayment": true,
		})
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrUnresolvable):
		WriteError(w, http.StatusUnprocessableEntity, "unresolvable_payment", "payment could not be linked to a user")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, service.ErrMaintenance):
		WriteError(w, http.StatusServiceUnavailable, "maintenance", "down for maintenance")
	case errors.Is(err, service.ErrDownloadsDisabled):
		WriteError(w, http.StatusServiceUnavailable, "downloads_disabled", "downloads are disabled")
	case errors.Is(err, auth.ErrProviderDisabled), errors.Is(err, domain.ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "not configured")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

var knownErrors = []error{
	domain.ErrValidation,
	domain.ErrSignatureInvalid,
	domain.ErrEmailTaken,
	domain.ErrExternalAccountExists,
	domain.ErrAdminExists,
	domain.ErrSudoExists,
	domain.ErrAlreadyPurchased,
	domain.ErrInvalidCredentials,
	domain.ErrUnauthorized,
	domain.ErrForbidden,
	domain.ErrUnresolvable,
	domain.ErrNotFound,
	domain.ErrUnavailable,
	auth.ErrInvalidToken,
	auth.ErrProviderDisabled,
}

func isKnownError(err error) bool {
	for _, k := range knownErrors {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// fail writes err to the client and logs it when it maps to a 500.
func (a *api) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if !isKnownError(err) {
		logger := a.logger
		if logger == nil {
			logger = slog.Default()
		}
		fields := []any{"err", err, "path", r.URL.Path}
		if rid, ok := GetRequestID(r.Context()); ok {
			fields = append(fields, "request_id", rid)
		}
		logger.Error(msg, fields...)
	}
	WriteDomainError(w, err)
}
