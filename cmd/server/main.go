package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"quackquery/internal/auth"
	"quackquery/internal/config"
	"quackquery/internal/email"
	"quackquery/internal/httpapi"
	"quackquery/internal/metrics"
	"quackquery/internal/payments"
	"quackquery/internal/releases"
	"quackquery/internal/service"
	"quackquery/internal/store/memory"
	"quackquery/internal/store/postgres"
)

type stores struct {
	users    service.UsersStore
	sessions service.SessionsStore
	payments service.PaymentsStore
	pending  service.PendingPaymentsStore
	sudo     service.SudoStore
	settings service.SettingsStore
	events   service.WebhookEventsStore

	deleteExpired func(context.Context, time.Time) (int64, error)
	ping          func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()

	var st stores
	if cfg.DBDSN != "" {
		pool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.DBMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				logger.Error("db migrate failed", "err", err)
				os.Exit(1)
			}
		}

		sessions := postgres.NewSessionsStore(pool)
		st = stores{
			users:         postgres.NewUsersStore(pool),
			sessions:      sessions,
			payments:      postgres.NewPaymentsStore(pool),
			pending:       postgres.NewPendingPaymentsStore(pool),
			sudo:          postgres.NewSudoUsersStore(pool),
			settings:      postgres.NewAppSettingsStore(pool),
			events:        postgres.NewWebhookEventsStore(pool),
			deleteExpired: sessions.DeleteExpired,
			ping:          pool.Ping,
		}
	} else {
		logger.Warn("APP_DB_DSN not set, using in-memory store; data is lost on restart")
		m := memory.New()
		st = stores{
			users:         m,
			sessions:      m,
			payments:      m,
			pending:       m,
			sudo:          m,
			settings:      m,
			events:        m,
			deleteExpired: m.DeleteExpired,
			ping:          m.Ping,
		}
	}

	reconciler := &service.PaymentReconciler{
		Users:    st.users,
		Payments: st.payments,
		Pending:  st.pending,
		Logger:   logger,
	}

	identity := auth.NewIdentityVerifier(cfg.GoogleClientID, cfg.AppleServiceID)
	authSvc := &service.AuthService{
		Users:      st.users,
		Sessions:   st.sessions,
		Passwords:  auth.DefaultPasswordHasher(),
		Identity:   identity,
		Reconciler: reconciler,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	entitlementSvc := &service.EntitlementService{
		Users:    st.users,
		Sudo:     st.sudo,
		Payments: st.payments,
	}

	var alerter service.Alerter
	if cfg.SMTP.Enabled() {
		alerter = &service.OperatorAlerts{
			Sender: email.NewSMTPSender(email.SMTPSettings{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				TLSMode:  cfg.SMTP.TLSMode,
			}),
			FromEmail: cfg.SMTP.From,
			To:        cfg.OperatorEmails,
			Logger:    logger,
		}
	} else {
		alerter = &service.OperatorAlerts{Logger: logger}
	}

	webhookSvc := &service.WebhookService{
		Reconciler: reconciler,
		Events:     st.events,
		Alerts:     alerter,
		Logger:     logger,
	}
	if cfg.WebhookSecret != "" {
		v, err := payments.NewVerifier(cfg.WebhookSecret)
		if err != nil {
			logger.Error("webhook secret invalid", "err", err)
			os.Exit(1)
		}
		webhookSvc.Verifier = v
	} else {
		logger.Warn("APP_WEBHOOK_SECRET not set, payment webhooks are rejected")
	}

	checkoutSvc := &service.CheckoutService{
		Entitlements: entitlementSvc,
		Payments:     st.payments,
		ProductID:    cfg.PaymentsProduct,
	}
	if client := payments.NewClient(cfg.PaymentsAPIKey, cfg.PaymentsMode); client != nil {
		checkoutSvc.Provider = client
		webhookSvc.Lookup = client
	} else {
		logger.Info("payments api key not set, checkout disabled")
	}

	var publicURL string
	if cfg.PublicURL != nil {
		publicURL = cfg.PublicURL.String()
		checkoutSvc.ReturnURL = publicURL + "/"
	}

	source, err := newReleaseSource(ctx, cfg)
	if err != nil {
		logger.Error("release source setup failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(reg)

	apiRouter := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:       logger,
		IsProd:       cfg.IsProd(),
		DBPing:       st.ping,
		Metrics:      metrics.Handler(reg),
		Auth:         authSvc,
		Entitlements: entitlementSvc,
		Webhooks:     webhookSvc,
		Checkout:     checkoutSvc,
		Admin: &service.AdminService{
			Users:      st.users,
			Sudo:       st.sudo,
			Settings:   st.settings,
			Payments:   st.payments,
			Pending:    st.pending,
			Events:     st.events,
			Reconciler: reconciler,
			Logger:     logger,
		},
		Downloads: &service.DownloadService{
			Settings:     st.settings,
			Entitlements: entitlementSvc,
			Source:       source,
		},
		Cookies: auth.CookieJar{
			Signer: auth.NewSigner([]byte(cfg.CookieSecret)),
			Secure: cfg.CookieSecure(),
		},
		SessionTTL:    cfg.SessionTTL,
		DesktopTokens: &auth.DesktopTokens{Secret: []byte(cfg.DesktopSecret), TTL: cfg.DesktopTokenTTL},
		GoogleOAuth:   auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleSecret, publicURL+"/v1/auth/google/callback", identity),
		AfterLoginURL: publicURL + "/",
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go pruneSessions(pruneCtx, logger, st.deleteExpired)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "release_source", cfg.ReleaseSource)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

func newReleaseSource(ctx context.Context, cfg config.Config) (releases.Source, error) {
	manifest := releases.DefaultManifest()
	if cfg.ReleaseManifest != "" {
		m, err := releases.LoadManifest(cfg.ReleaseManifest)
		if err != nil {
			return nil, err
		}
		manifest = m
	}

	switch cfg.ReleaseSource {
	case "github":
		return releases.NewGitHubSource(cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubToken, manifest), nil
	case "s3":
		return releases.NewS3Source(ctx, releases.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, manifest)
	default:
		return releases.StaticSource{Manifest: manifest}, nil
	}
}

// pruneSessions drops expired sessions once an hour.
func pruneSessions(ctx context.Context, logger *slog.Logger, deleteExpired func(context.Context, time.Time) (int64, error)) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := deleteExpired(ctx, now)
			if err != nil {
				logger.Warn("session prune failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned expired sessions", "count", n)
			}
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
