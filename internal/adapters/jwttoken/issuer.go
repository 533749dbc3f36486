// Package jwttoken issues and verifies HS256 access tokens for sessions.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

const defaultIssuer = "notekeeper"

// Claims are the access token claims. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
}

// Issuer implements ports.TokenIssuer.
type Issuer struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// Options configures New.
type Options struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// New creates an Issuer. The secret must be non-empty.
func New(opts Options) (*Issuer, error) {
	if opts.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	iss := opts.Issuer
	if iss == "" {
		iss = defaultIssuer
	}
	return &Issuer{key: []byte(opts.Secret), issuer: iss, leeway: opts.Leeway}, nil
}

// Issue signs an access token for sess, expiring at sess.ExpiresAt.
func (i *Issuer) Issue(sess domainauth.Session) (string, error) {
	if sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session ID and user ID are required")
	}
	issuedAt := sess.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			ID:        sess.ID,
		},
		SessionID: sess.ID,
		Email:     sess.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses token and checks its signature, issuer and expiry. Any failure
// is reported as domainauth.ErrInvalidToken.
func (i *Issuer) Verify(token string) (ports.AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(i.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return ports.AccessClaims{}, fmt.Errorf("%w: %w", domainauth.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" || claims.Subject == "" {
		return ports.AccessClaims{}, domainauth.ErrInvalidToken
	}
	return ports.AccessClaims{
		SessionID: claims.SessionID,
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
