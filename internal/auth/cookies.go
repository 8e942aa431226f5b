package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookieName    = "qq_session"
	OAuthStateCookieName = "qq_oauth_state"
)

// Signer appends an HMAC-SHA256 tag to cookie values. With an empty secret
// values pass through untouched, which is only acceptable outside prod.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) Signer {
	return Signer{secret: append([]byte(nil), secret...)}
}

func (s Signer) Sign(value string) string {
	if len(s.secret) == 0 {
		return value
	}
	return value + "." + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

func (s Signer) Verify(signed string) (string, bool) {
	if len(s.secret) == 0 {
		return signed, signed != ""
	}
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", false
	}
	value, tag := signed[:i], signed[i+1:]
	sig, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil || !hmac.Equal(sig, s.mac(value)) {
		return "", false
	}
	return value, true
}

func (s Signer) mac(value string) []byte {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(value))
	return m.Sum(nil)
}

// CookieJar writes the cookies this service owns with consistent attributes.
type CookieJar struct {
	Signer Signer
	Secure bool
}

func (j CookieJar) SetSession(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	j.set(w, SessionCookieName, j.Signer.Sign(sessionID), ttl)
}

func (j CookieJar) Session(r *http.Request) (string, bool) {
	return j.read(r, SessionCookieName)
}

func (j CookieJar) ClearSession(w http.ResponseWriter) {
	j.clear(w, SessionCookieName)
}

func (j CookieJar) SetOAuthState(w http.ResponseWriter, state string) {
	j.set(w, OAuthStateCookieName, j.Signer.Sign(state), 10*time.Minute)
}

// ConsumeOAuthState returns the stored state and clears the cookie.
func (j CookieJar) ConsumeOAuthState(w http.ResponseWriter, r *http.Request) (string, bool) {
	state, ok := j.read(r, OAuthStateCookieName)
	j.clear(w, OAuthStateCookieName)
	return state, ok
}

func (j CookieJar) read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return j.Signer.Verify(c.Value)
}

func (j CookieJar) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	})
}

func (j CookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
