package httpapi

import (
	"errors"
	"io"
	"net/http"

	"quackquery/internal/domain"
)

// handlePaymentsWebhook reads the raw body since the signature covers the
// exact bytes sent.
func (a *api) handlePaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "webhook body too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}

	res, err := a.webhookSvc.Process(r.Context(), r.Header, body)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			a.logger.Warn("payments: webhook rejected", "err", err, "ip", clientIP(r))
		}
		a.fail(w, r, "payments: webhook processing failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"received": true, "result": res})
}
