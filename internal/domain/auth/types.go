package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Credentials carries an email/password pair for sign-in and sign-up.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalized returns a copy with the email trimmed and lowercased.
func (c Credentials) Normalized() Credentials {
	return Credentials{Email: strings.ToLower(strings.TrimSpace(c.Email)), Password: c.Password}
}

// Session is the token bundle issued to a signed-in user.
// ID is the server-side session identifier; AccessToken is a signed bearer token
// and RefreshToken rotates the bundle before ExpiresAt.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	AccessToken      string    `json:"access_token,omitempty"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Expired reports whether the access token has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Refreshable reports whether the refresh token is still usable at now.
func (s Session) Refreshable(now time.Time) bool {
	if s.RefreshToken == "" {
		return false
	}
	return s.RefreshExpiresAt.IsZero() || now.Before(s.RefreshExpiresAt)
}

// Identity is the signed-in principal derived from a Session.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// IdentityFrom derives an Identity from s. It returns nil iff s is nil.
func IdentityFrom(s *Session) *Identity {
	if s == nil {
		return nil
	}
	return &Identity{UserID: s.UserID, Email: s.Email}
}

// FederatedIdentity represents the principal returned by an external IdP.
// Adapters map provider-specific claims into this shape.
type FederatedIdentity struct {
	Subject   string // stable IdP identifier (sub claim)
	Email     string
	Name      string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// SignUpResult is returned by sign-up. Session is nil when the account still
// needs confirmation before a session can be issued.
type SignUpResult struct {
	Session             *Session `json:"session,omitempty"`
	PendingConfirmation bool     `json:"pending_confirmation"`
}
