package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	Addr         string
	PublicURL    *url.URL
	DBDSN        string
	DBMigrate    bool
	CookieSecret string
	SessionTTL   time.Duration
	LogLevel     string

	WebhookSecret   string
	PaymentsAPIKey  string
	PaymentsMode    string
	PaymentsProduct string
	GoogleClientID  string
	GoogleSecret    string
	AppleServiceID  string
	DesktopSecret   string
	DesktopTokenTTL time.Duration
	ReleaseSource   string
	ReleaseManifest string
	GitHubOwner     string
	GitHubRepo      string
	GitHubToken     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	SMTP            SMTPConfig
	OperatorEmails  []string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string
	From     string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" && c.From != "" }

// Load reads the process environment after merging an optional .env file.
// Variables already present in the environment win over the file.
func Load() (Config, error) {
	path := os.Getenv("APP_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := loadDotEnvFile(path, os.Setenv, os.Getenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return LoadFromEnv(os.Getenv)
}

func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:             getenv("APP_ENV"),
		Addr:            getenv("APP_ADDR"),
		DBDSN:           getenv("APP_DB_DSN"),
		LogLevel:        getenv("APP_LOG_LEVEL"),
		CookieSecret:    getenv("APP_COOKIE_SECRET"),
		WebhookSecret:   strings.TrimSpace(getenv("APP_WEBHOOK_SECRET")),
		PaymentsAPIKey:  strings.TrimSpace(getenv("APP_PAYMENTS_API_KEY")),
		PaymentsMode:    strings.TrimSpace(strings.ToLower(getenv("APP_PAYMENTS_MODE"))),
		PaymentsProduct: strings.TrimSpace(getenv("APP_PAYMENTS_PRODUCT_ID")),
		GoogleClientID:  strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
		GoogleSecret:    strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_SECRET")),
		AppleServiceID:  strings.TrimSpace(getenv("APP_APPLE_SERVICE_ID")),
		DesktopSecret:   getenv("APP_DESKTOP_TOKEN_SECRET"),
		ReleaseSource:   strings.TrimSpace(strings.ToLower(getenv("APP_RELEASE_SOURCE"))),
		ReleaseManifest: strings.TrimSpace(getenv("APP_RELEASE_MANIFEST")),
		GitHubOwner:     strings.TrimSpace(getenv("APP_GITHUB_OWNER")),
		GitHubRepo:      strings.TrimSpace(getenv("APP_GITHUB_REPO")),
		GitHubToken:     strings.TrimSpace(getenv("APP_GITHUB_TOKEN")),
		S3Bucket:        strings.TrimSpace(getenv("APP_S3_BUCKET")),
		S3Region:        strings.TrimSpace(getenv("APP_S3_REGION")),
		S3Endpoint:      strings.TrimSpace(getenv("APP_S3_ENDPOINT")),
		S3AccessKey:     strings.TrimSpace(getenv("APP_S3_ACCESS_KEY")),
		S3SecretKey:     getenv("APP_S3_SECRET_KEY"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}

	var err error
	if cfg.SessionTTL, err = parseDuration(getenv, "APP_SESSION_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.DesktopTokenTTL, err = parseDuration(getenv, "APP_DESKTOP_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}

	migrateRaw := strings.TrimSpace(getenv("APP_DB_MIGRATE"))
	if migrateRaw == "" {
		cfg.DBMigrate = !cfg.IsProd()
	} else {
		b, err := strconv.ParseBool(migrateRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_DB_MIGRATE: %w", err)
		}
		cfg.DBMigrate = b
	}

	switch cfg.PaymentsMode {
	case "":
		cfg.PaymentsMode = "test"
		if cfg.IsProd() {
			cfg.PaymentsMode = "live"
		}
	case "test", "live":
	default:
		return Config{}, errors.New("APP_PAYMENTS_MODE: must be test or live")
	}

	switch cfg.ReleaseSource {
	case "":
		cfg.ReleaseSource = "static"
	case "static":
	case "github":
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			return Config{}, errors.New("APP_GITHUB_OWNER, APP_GITHUB_REPO: required for github release source")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return Config{}, errors.New("APP_S3_BUCKET: required for s3 release source")
		}
	default:
		return Config{}, errors.New("APP_RELEASE_SOURCE: must be one of static, github, s3")
	}

	cfg.SMTP = SMTPConfig{
		Host:     strings.TrimSpace(getenv("APP_SMTP_HOST")),
		Username: getenv("APP_SMTP_USERNAME"),
		Password: getenv("APP_SMTP_PASSWORD"),
		TLSMode:  strings.TrimSpace(strings.ToLower(getenv("APP_SMTP_TLS"))),
		From:     strings.TrimSpace(getenv("APP_SMTP_FROM")),
		Port:     587,
	}
	if raw := strings.TrimSpace(getenv("APP_SMTP_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, errors.New("APP_SMTP_PORT: must be a valid port")
		}
		cfg.SMTP.Port = port
	}
	cfg.OperatorEmails = parseCSV(getenv("APP_OPERATOR_EMAILS"))

	if cfg.DesktopSecret == "" {
		cfg.DesktopSecret = cfg.CookieSecret
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.CookieSecret) < 32 {
			return Config{}, errors.New("APP_COOKIE_SECRET: must be at least 32 bytes in prod")
		}
		if cfg.WebhookSecret == "" {
			return Config{}, errors.New("APP_WEBHOOK_SECRET: required in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return d, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
