package config

import (
	"fmt"
	"strings"
	"time"
)

// SSOMode selects the federated sign-in provider offered next to password accounts.
type SSOMode string

const (
	// SSOModeNone disables federated sign-in.
	SSOModeNone SSOMode = "none"
	// SSOModeOAuth uses OAuth/OIDC for federated sign-in.
	SSOModeOAuth SSOMode = "oauth"
	// SSOModeMock uses a config-driven dev identity (for development only).
	SSOModeMock SSOMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for SSOMode.
func (m *SSOMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "none", "oauth", "mock":
		*m = SSOMode(v)
		return nil
	case "":
		*m = SSOModeNone
		return nil
	default:
		return fmt.Errorf("invalid SSOMode: %q (valid options: none, oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"notekeeper"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"notekeeper"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the mock SSO identity.
// Used when AUTH_SSO_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-user"`
	Email  string `env:"EMAIL"   envDefault:"dev@example.com"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// JWTSecret signs access tokens (HS256). Required outside dev.
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// AccessTokenTTL bounds the lifetime of an access token.
	AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"15m"`

	// SessionTTL bounds the lifetime of a session (and its refresh token).
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"168h"`

	// RequireConfirmation leaves new accounts unconfirmed until an admin confirms them.
	RequireConfirmation bool `env:"AUTH_REQUIRE_CONFIRMATION" envDefault:"false"`

	// MaxFailedAttempts and LockoutWindow throttle password sign-in per email.
	MaxFailedAttempts int           `env:"AUTH_MAX_FAILED_ATTEMPTS" envDefault:"5"`
	LockoutWindow     time.Duration `env:"AUTH_LOCKOUT_WINDOW"      envDefault:"15m"`

	// SSOMode determines which federated provider to use.
	SSOMode SSOMode `env:"AUTH_SSO_MODE" envDefault:"none"`

	// OAuth configuration (used when SSOMode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when SSOMode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies lower bounds to durations and attempt limits.
func (a *AuthConfig) Sanitize() {
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 15 * time.Minute
	}
	if a.SessionTTL < a.AccessTokenTTL {
		a.SessionTTL = a.AccessTokenTTL
	}
	if a.MaxFailedAttempts < 0 {
		a.MaxFailedAttempts = 0
	}
	if a.LockoutWindow <= 0 {
		a.LockoutWindow = 15 * time.Minute
	}
	if a.SSOMode == "" {
		a.SSOMode = SSOModeNone
	}
}

// SSOEnabled reports whether a federated provider is configured.
func (a *AuthConfig) SSOEnabled() bool {
	return a.SSOMode == SSOModeOAuth || a.SSOMode == SSOModeMock
}
