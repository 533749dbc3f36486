package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientConfig configures the notekeeper CLI client.
type ClientConfig struct {
	// APIURL is the base URL of the notekeeper service.
	APIURL string `env:"NOTEKEEPER_API_URL" envDefault:"http://localhost:8080"`

	// StateDir holds the persisted session database. Defaults to the user config dir.
	StateDir string `env:"NOTEKEEPER_STATE_DIR"`

	// SessionKey encrypts the persisted session. Empty stores it unencrypted.
	SessionKey string `env:"NOTEKEEPER_SESSION_KEY"`

	// RequestTimeout bounds every API call made by the client.
	RequestTimeout time.Duration `env:"NOTEKEEPER_REQUEST_TIMEOUT" envDefault:"10s"`

	// SettleDelay is the quiet period before the auth state is considered stable.
	SettleDelay time.Duration `env:"NOTEKEEPER_SETTLE_DELAY" envDefault:"50ms"`

	// InitTimeout bounds the initial session check.
	InitTimeout time.Duration `env:"NOTEKEEPER_INIT_TIMEOUT" envDefault:"5s"`

	// LandingPath is where the client lands after sign-in when no destination was carried.
	LandingPath string `env:"NOTEKEEPER_LANDING_PATH" envDefault:"/dashboard"`
}

// Sanitize fills defaults that depend on the environment.
func (c *ClientConfig) Sanitize() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 50 * time.Millisecond
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 5 * time.Second
	}
	if !strings.HasPrefix(c.LandingPath, "/") {
		c.LandingPath = "/dashboard"
	}
	if strings.TrimSpace(c.StateDir) == "" {
		c.StateDir = defaultStateDir()
	}
}

// SessionDBPath is the bbolt file that stores the client session.
func (c *ClientConfig) SessionDBPath() string {
	return filepath.Join(c.StateDir, "session.db")
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "notekeeper")
	}
	return ".notekeeper"
}
