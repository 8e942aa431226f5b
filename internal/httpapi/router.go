package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"quackquery/internal/auth"
	"quackquery/internal/metrics"
	"quackquery/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing  func(context.Context) error
	Metrics http.Handler

	Auth         *service.AuthService
	Entitlements *service.EntitlementService
	Webhooks     *service.WebhookService
	Checkout     *service.CheckoutService
	Admin        *service.AdminService
	Downloads    *service.DownloadService

	Cookies       auth.CookieJar
	SessionTTL    time.Duration
	DesktopTokens *auth.DesktopTokens
	GoogleOAuth   *auth.GoogleOAuth
	// AfterLoginURL is where the browser OAuth callback redirects on success.
	AfterLoginURL string

	// Requests per minute per IP on the webhook and desktop routes. Zero
	// means 120.
	RateLimit int
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AfterLoginURL == "" {
		opts.AfterLoginURL = "/"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}

	api := &api{
		logger:         logger,
		isProd:         opts.IsProd,
		dbPing:         opts.DBPing,
		authSvc:        opts.Auth,
		entitlementSvc: opts.Entitlements,
		webhookSvc:     opts.Webhooks,
		checkoutSvc:    opts.Checkout,
		adminSvc:       opts.Admin,
		downloadSvc:    opts.Downloads,
		cookies:        opts.Cookies,
		sessionTTL:     opts.SessionTTL,
		desktopTokens:  opts.DesktopTokens,
		googleOAuth:    opts.GoogleOAuth,
		afterLoginURL:  opts.AfterLoginURL,
		loginLimiter:   newLoginLimiter(10, 5*time.Minute),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Metrics != nil {
		publicMux.Handle("GET /metrics", opts.Metrics)
	}

	limited := httprate.LimitByIP(opts.RateLimit, time.Minute)
	desktopCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})

	if api.authSvc == nil {
		apiMux.HandleFunc("POST /v1/auth/register", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/auth/login", handleNotImplemented)
		apiMux.HandleFunc("GET /v1/users/me", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /v1/auth/register", api.handleAuthRegister)
		apiMux.HandleFunc("POST /v1/auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("POST /v1/auth/google", api.handleAuthLoginGoogle)
		apiMux.HandleFunc("POST /v1/auth/apple", api.handleAuthLoginApple)
		apiMux.HandleFunc("GET /v1/auth/google/start", api.handleGoogleOAuthStart)
		apiMux.HandleFunc("GET /v1/auth/google/callback", api.handleGoogleOAuthCallback)
		apiMux.HandleFunc("POST /v1/auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("GET /v1/users/me", api.requireAuth(api.handleUsersMe))

		if api.entitlementSvc != nil {
			apiMux.HandleFunc("GET /v1/entitlement", api.requireAuth(api.handleEntitlement))
			apiMux.HandleFunc("POST /v1/desktop/token", api.requireAuth(api.handleDesktopToken))
			status := desktopCORS(limited(api.requireDesktop(api.handleDesktopStatus)))
			apiMux.Handle("GET /v1/desktop/status", status)
			apiMux.Handle("OPTIONS /v1/desktop/status", status)
		}
		if api.checkoutSvc != nil {
			apiMux.HandleFunc("POST /v1/checkout", api.requireAuth(api.handleCheckout))
		}
		if api.downloadSvc != nil {
			apiMux.HandleFunc("GET /v1/download", api.requireAuth(api.handleDownload))
		}
		if api.adminSvc != nil {
			apiMux.HandleFunc("GET /v1/admin/setup", api.requireAuth(api.handleAdminSetupStatus))
			apiMux.HandleFunc("POST /v1/admin/setup", api.requireAuth(api.handleAdminSetupClaim))
			apiMux.HandleFunc("GET /v1/admin/sudo-users", api.requireAdmin(api.handleAdminSudoList))
			apiMux.HandleFunc("POST /v1/admin/sudo-users", api.requireAdmin(api.handleAdminSudoAdd))
			apiMux.HandleFunc("DELETE /v1/admin/sudo-users", api.requireAdmin(api.handleAdminSudoRemove))
			apiMux.HandleFunc("DELETE /v1/admin/sudo-users/{email}", api.requireAdmin(api.handleAdminSudoRemove))
			apiMux.HandleFunc("GET /v1/admin/settings", api.requireAdmin(api.handleAdminSettingsGet))
			apiMux.HandleFunc("PUT /v1/admin/settings", api.requireAdmin(api.handleAdminSettingsUpdate))
			apiMux.HandleFunc("POST /v1/admin/activate-pending", api.requireAdmin(api.handleAdminActivatePending))
			apiMux.HandleFunc("POST /v1/admin/grant", api.requireAdmin(api.handleAdminGrant))
			apiMux.HandleFunc("GET /v1/admin/stats", api.requireAdmin(api.handleAdminStats))
			apiMux.HandleFunc("GET /v1/admin/payments", api.requireAdmin(api.handleAdminPayments))
			apiMux.HandleFunc("GET /v1/admin/webhook-events", api.requireAdmin(api.handleAdminWebhookEvents))
			apiMux.HandleFunc("GET /v1/settings/public", api.handlePublicSettings)
		}
	}
	if api.webhookSvc != nil {
		apiMux.Handle("POST /v1/webhooks/payments", limited(http.HandlerFunc(api.handlePaymentsWebhook)))
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		h.ServeHTTP(rec, r)
		observeRequest(r.Method, pattern, rec.status, time.Since(start))
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func observeRequest(method, pattern string, status int, d time.Duration) {
	// Patterns carry the method ("GET /v1/entitlement"); keep only the path.
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	metrics.HTTPRequestDurationSeconds.
		WithLabelValues(method, pattern, statusClass(status)).
		Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc        *service.AuthService
	entitlementSvc *service.EntitlementService
	webhookSvc     *service.WebhookService
	checkoutSvc    *service.CheckoutService
	adminSvc       *service.AdminService
	downloadSvc    *service.DownloadService

	cookies       auth.CookieJar
	sessionTTL    time.Duration
	desktopTokens *auth.DesktopTokens
	googleOAuth   *auth.GoogleOAuth
	afterLoginURL string

	loginLimiter *loginLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
