package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const desktopIssuer = "quackquery"

var ErrInvalidToken = errors.New("invalid desktop token")

type DesktopClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// DesktopTokens issues the bearer tokens the desktop app presents when it
// asks whether the signed-in user may run premium features.
type DesktopTokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (d *DesktopTokens) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *DesktopTokens) Issue(userID, email string) (string, time.Time, error) {
	if len(d.Secret) == 0 {
		return "", time.Time{}, errors.New("desktop token secret not configured")
	}
	now := d.now()
	exp := now.Add(d.TTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, DesktopClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    desktopIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
	})
	signed, err := tok.SignedString(d.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign desktop token: %w", err)
	}
	return signed, exp, nil
}

func (d *DesktopTokens) Parse(raw string) (DesktopClaims, error) {
	var claims DesktopClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return d.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(desktopIssuer),
		jwt.WithTimeFunc(d.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid || claims.Subject == "" {
		return DesktopClaims{}, ErrInvalidToken
	}
	return claims, nil
}
