// Package auth issues and verifies admin bearer tokens (HS256 JWT).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/sendergate/internal/errs"
)

const leeway = 30 * time.Second

// Claims identifies the caller. Channel scopes the sovereign check for
// callers authorized through a channel-specific contact.
type Claims struct {
	jwt.RegisteredClaims
	Channel string `json:"chn,omitempty"`
}

// Issue signs a token for subject valid for ttl.
func Issue(key []byte, subject, channel string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", errs.ErrInvalidArgument)
	}
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "sendergate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Channel: channel,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	return signed, exp, err
}

// Parse verifies the signature and time claims of token.
func Parse(key []byte, token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(leeway), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", errs.ErrUnauthorized)
	}
	return claims, nil
}
