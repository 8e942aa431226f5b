package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"quackquery/internal/auth"
	"quackquery/internal/domain"
	"quackquery/internal/payments"
	"quackquery/internal/releases"
	"quackquery/internal/service"
	"quackquery/internal/store/memory"
)

const testWebhookSecret = "whsec_cXVhY2txdWFjay13ZWJob29rLXNlY3JldA=="

type testEnv struct {
	t        *testing.T
	store    *memory.Store
	cookies  auth.CookieJar
	desktop  *auth.DesktopTokens
	verifier *payments.Verifier
	handler  http.Handler
}

type fixedSource struct{}

func (fixedSource) DownloadURL(_ context.Context, p releases.Platform) (string, error) {
	return "https://downloads.example/" + string(p), nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test replace services before the router is built.
func newTestEnvWith(t *testing.T, adjust func(m *memory.Store, opts *RouterOpts)) *testEnv {
	t.Helper()

	m := memory.New()
	v, err := payments.NewVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	rec := &service.PaymentReconciler{Users: m, Payments: m, Pending: m}
	ent := &service.EntitlementService{Users: m, Sudo: m, Payments: m}
	env := &testEnv{
		t:        t,
		store:    m,
		cookies:  auth.CookieJar{Signer: auth.NewSigner([]byte("test-cookie-secret"))},
		desktop:  &auth.DesktopTokens{Secret: []byte("test-desktop-secret"), TTL: time.Hour},
		verifier: v,
	}
	opts := RouterOpts{
		Auth: &service.AuthService{
			Users:      m,
			Sessions:   m,
			Passwords:  auth.PasswordHasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32},
			Reconciler: rec,
			SessionTTL: time.Hour,
		},
		Entitlements: ent,
		Webhooks:     &service.WebhookService{Verifier: v, Reconciler: rec, Events: m},
		Checkout:     &service.CheckoutService{Entitlements: ent, Payments: m},
		Admin: &service.AdminService{
			Users:      m,
			Sudo:       m,
			Settings:   m,
			Payments:   m,
			Pending:    m,
			Events:     m,
			Reconciler: rec,
		},
		Downloads:     &service.DownloadService{Settings: m, Entitlements: ent, Source: fixedSource{}},
		Cookies:       env.cookies,
		SessionTTL:    time.Hour,
		DesktopTokens: env.desktop,
	}
	if adjust != nil {
		adjust(m, &opts)
	}
	env.handler = NewRouter(opts)
	return env
}

// login seeds a session for u and returns the signed cookie.
func (e *testEnv) login(u domain.User) *http.Cookie {
	e.t.Helper()
	sessID, err := e.store.CreateSession(context.Background(), u.ID, time.Now().Add(time.Hour), "", "")
	if err != nil {
		e.t.Fatalf("CreateSession: %v", err)
	}
	return &http.Cookie{Name: auth.SessionCookieName, Value: e.cookies.Signer.Sign(sessID)}
}

func (e *testEnv) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) webhook(id string, body []byte, sign bool) *httptest.ResponseRecorder {
	e.t.Helper()
	now := time.Now()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.9:1234"
	req.Header.Set(payments.HeaderWebhookID, id)
	req.Header.Set(payments.HeaderWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
	if sign {
		req.Header.Set(payments.HeaderWebhookSignature, e.verifier.Sign(id, now, body))
	} else {
		req.Header.Set(payments.HeaderWebhookSignature, "v1,bm9wZQ==")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBodyMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBodyMap(t, rr)
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func newRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	return req
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}
