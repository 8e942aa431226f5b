package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not_found")
	ErrEmailTaken            = errors.New("email_taken")
	ErrInvalidCredentials    = errors.New("invalid_credentials")
	ErrExternalAccountExists = errors.New("external_account_exists")
	ErrAdminExists           = errors.New("admin_exists")
	ErrSudoExists            = errors.New("sudo_exists")
	ErrAlreadyPurchased      = errors.New("already_purchased")
	ErrSignatureInvalid      = errors.New("signature_invalid")
	ErrUnresolvable          = errors.New("unresolvable_payment")
	ErrUnavailable           = errors.New("unavailable")
	ErrValidation            = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// NormalizeEmail is the single comparison key for emails across users,
// payments and the sudo allow-list.
func NormalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
