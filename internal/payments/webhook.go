package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quackquery/internal/domain"
)

const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	DefaultTolerance = 5 * time.Minute
)

// Verifier checks Standard Webhooks signatures: HMAC-SHA256 over
// "<id>.<timestamp>.<body>" keyed with the base64 secret.
type Verifier struct {
	key       []byte
	Tolerance time.Duration
	Now       func() time.Time
}

// NewVerifier accepts the secret as issued by the provider, with or without
// the "whsec_" prefix.
func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimPrefix(strings.TrimSpace(secret), "whsec_")
	if secret == "" {
		return nil, errors.New("webhook secret required")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &Verifier{key: key, Tolerance: DefaultTolerance, Now: time.Now}, nil
}

// Verify returns an error wrapping domain.ErrSignatureInvalid unless one of
// the v1 signatures matches and the timestamp is within tolerance.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id := h.Get(HeaderWebhookID)
	ts := h.Get(HeaderWebhookTimestamp)
	sigs := h.Get(HeaderWebhookSignature)
	if id == "" || ts == "" || sigs == "" {
		return fmt.Errorf("%w: missing webhook headers", domain.ErrSignatureInvalid)
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrSignatureInvalid)
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	drift := now().Sub(time.Unix(sec, 0))
	if drift > v.Tolerance || drift < -v.Tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrSignatureInvalid)
	}

	expected := v.mac(id, ts, body)
	for _, part := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", domain.ErrSignatureInvalid)
}

// Sign produces a webhook-signature header value for the given delivery.
func (v *Verifier) Sign(id string, at time.Time, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.mac(id, strconv.FormatInt(at.Unix(), 10), body))
}

func (v *Verifier) mac(id, ts string, body []byte) []byte {
	m := hmac.New(sha256.New, v.key)
	_, _ = m.Write([]byte(id))
	_, _ = m.Write([]byte{'.'})
	_, _ = m.Write([]byte(ts))
	_, _ = m.Write([]byte{'.'})
	_, _ = m.Write(body)
	return m.Sum(nil)
}
