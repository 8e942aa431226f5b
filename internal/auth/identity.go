package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

var ErrProviderDisabled = errors.New("identity provider not configured")

// Identity is what a verified third-party ID token tells us about the caller.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityVerifier checks Google and Apple ID tokens against the configured
// audiences. The Validate hooks exist so tests can skip the network.
type IdentityVerifier struct {
	GoogleClientID string
	AppleServiceID string

	ValidateGoogle func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
	ValidateApple  func(ctx context.Context, token, audience string) (AppleClaims, error)
}

type AppleClaims struct {
	Issuer  string
	Subject string
	Email   string
}

func NewIdentityVerifier(googleClientID, appleServiceID string) *IdentityVerifier {
	apple := validator.NewClient()
	return &IdentityVerifier{
		GoogleClientID: googleClientID,
		AppleServiceID: appleServiceID,
		ValidateGoogle: idtoken.Validate,
		ValidateApple: func(_ context.Context, token, audience string) (AppleClaims, error) {
			resp, err := apple.VerifyIdToken(audience, token)
			if err != nil {
				return AppleClaims{}, err
			}
			return AppleClaims{Issuer: resp.Iss, Subject: resp.Sub, Email: resp.Email}, nil
		},
	}
}

func (v *IdentityVerifier) Enabled(provider string) bool {
	switch provider {
	case ProviderGoogle:
		return v != nil && v.GoogleClientID != ""
	case ProviderApple:
		return v != nil && v.AppleServiceID != ""
	}
	return false
}

func (v *IdentityVerifier) Verify(ctx context.Context, provider, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, errors.New("missing id token")
	}
	if !v.Enabled(provider) {
		return Identity{}, ErrProviderDisabled
	}
	switch provider {
	case ProviderGoogle:
		return v.verifyGoogle(ctx, token)
	default:
		return v.verifyApple(ctx, token)
	}
}

func (v *IdentityVerifier) verifyGoogle(ctx context.Context, token string) (Identity, error) {
	payload, err := v.ValidateGoogle(ctx, token, v.GoogleClientID)
	if err != nil {
		return Identity{}, err
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return Identity{}, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	id := Identity{Provider: ProviderGoogle, Subject: payload.Subject}
	if s, ok := payload.Claims["email"].(string); ok {
		id.Email = strings.TrimSpace(strings.ToLower(s))
	}
	if b, ok := payload.Claims["email_verified"].(bool); ok {
		id.EmailVerified = b
	}
	if s, ok := payload.Claims["name"].(string); ok {
		id.Name = strings.TrimSpace(s)
	}
	return id, nil
}

func (v *IdentityVerifier) verifyApple(ctx context.Context, token string) (Identity, error) {
	claims, err := v.ValidateApple(ctx, token, v.AppleServiceID)
	if err != nil {
		return Identity{}, err
	}
	if claims.Issuer != "https://appleid.apple.com" {
		return Identity{}, fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	// apple only relays verified addresses
	return Identity{
		Provider:      ProviderApple,
		Subject:       claims.Subject,
		Email:         strings.TrimSpace(strings.ToLower(claims.Email)),
		EmailVerified: claims.Email != "",
	}, nil
}
