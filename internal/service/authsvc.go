package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quackquery/internal/auth"
	"quackquery/internal/domain"
)

const minPasswordLen = 12

// IdentityVerifier checks a provider ID token and returns the identity it carries.
type IdentityVerifier interface {
	Verify(ctx context.Context, provider, token string) (auth.Identity, error)
}

// UserReconciler runs after a user row is created.
type UserReconciler interface {
	ReconcileUser(ctx context.Context, u domain.User) ([]domain.ReconciledPayment, error)
}

type AuthService struct {
	Users      UsersStore
	Sessions   SessionsStore
	Passwords  auth.PasswordHasher
	Identity   IdentityVerifier
	Reconciler UserReconciler
	SessionTTL time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *AuthService) Register(ctx context.Context, email, name, password, ip, userAgent string) (domain.User, string, error) {
	email = domain.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	fields := map[string]string{}
	if !validEmail(email) {
		fields["email"] = "must be a valid email"
	}
	if len(password) < minPasswordLen {
		fields["password"] = "must be at least 12 characters"
	}
	if len(fields) > 0 {
		return domain.User{}, "", domain.NewValidationError(fields)
	}

	passwordHash, err := s.Passwords.Hash(password)
	if err != nil {
		return domain.User{}, "", err
	}

	u, err := s.Users.CreateUser(ctx, email, name, passwordHash)
	if err != nil {
		return domain.User{}, "", err
	}
	s.afterCreate(ctx, u)

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, sessID, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (domain.User, string, error) {
	email = domain.NormalizeEmail(email)

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if u.PasswordHash == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	ok, err := s.Passwords.Verify(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, u.User, ip, userAgent)
}

// LoginWithProvider verifies a provider ID token and signs the holder in,
// creating the account on first use.
func (s *AuthService) LoginWithProvider(ctx context.Context, provider, idToken, ip, userAgent string) (domain.User, string, error) {
	if s.Identity == nil {
		return domain.User{}, "", auth.ErrProviderDisabled
	}
	id, err := s.Identity.Verify(ctx, provider, idToken)
	if err != nil {
		if errors.Is(err, auth.ErrProviderDisabled) {
			return domain.User{}, "", err
		}
		return domain.User{}, "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return s.LoginWithIdentity(ctx, id, ip, userAgent)
}

func (s *AuthService) LoginWithIdentity(ctx context.Context, id auth.Identity, ip, userAgent string) (domain.User, string, error) {
	if id.Subject == "" {
		return domain.User{}, "", domain.ErrUnauthorized
	}

	u, err := s.Users.GetUserByExternalAccount(ctx, id.Provider, id.Subject)
	switch {
	case err == nil:
		return s.startSession(ctx, u, ip, userAgent)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, "", err
	}

	email := domain.NormalizeEmail(id.Email)
	if email == "" || !id.EmailVerified {
		return domain.User{}, "", domain.ErrUnauthorized
	}

	existing, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.Users.LinkExternalAccount(ctx, existing.ID, id.Provider, id.Subject, email); err != nil {
			return domain.User{}, "", err
		}
		return s.startSession(ctx, existing.User, ip, userAgent)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, "", err
	}

	created, err := s.Users.CreateUserWithExternalAccount(ctx, id.Provider, id.Subject, email, strings.TrimSpace(id.Name))
	if err != nil {
		return domain.User{}, "", err
	}
	s.afterCreate(ctx, created)
	return s.startSession(ctx, created, ip, userAgent)
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.Sessions.RevokeSession(ctx, sessionID, s.now())
}

func (s *AuthService) GetUserForSession(ctx context.Context, sessionID string) (domain.User, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	if sess.RevokedAt != nil || !sess.ExpiresAt.After(s.now()) {
		return domain.User{}, domain.ErrUnauthorized
	}

	u, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) startSession(ctx context.Context, u domain.User, ip, userAgent string) (domain.User, string, error) {
	now := s.now()
	sessID, err := s.Sessions.CreateSession(ctx, u.ID, now.Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := s.Users.SetLastLogin(ctx, u.ID, now); err != nil {
		s.logger().Warn("auth: set last login failed", "err", err, "user_id", u.ID)
	}
	return u, sessID, nil
}

// afterCreate links payments made before the account existed. Failures are
// left for the admin sweep.
func (s *AuthService) afterCreate(ctx context.Context, u domain.User) {
	if s.Reconciler == nil {
		return
	}
	if _, err := s.Reconciler.ReconcileUser(ctx, u); err != nil {
		s.logger().Error("auth: reconcile new user failed", "err", err, "user_id", u.ID)
	}
}

func validEmail(email string) bool {
	if len(email) > 254 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
