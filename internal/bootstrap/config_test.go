package bootstrap

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/notekeeper/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestValidateServerConfig(t *testing.T) {
	base := func() *config.AppConfig {
		cfg := &config.AppConfig{}
		cfg.Auth.JWTSecret = "secret"
		cfg.Notes = config.NotesConfig{DefaultPageSize: 50, MaxPageSize: 200}
		return cfg
	}

	require.NoError(t, ValidateServerConfig(base()))
	require.Error(t, ValidateServerConfig(nil))

	t.Run("missing jwt secret outside dev", func(t *testing.T) {
		cfg := base()
		cfg.Auth.JWTSecret = ""
		assert.Error(t, ValidateServerConfig(cfg))

		cfg.IsDev = true
		assert.NoError(t, ValidateServerConfig(cfg))
	})

	t.Run("default page size above max", func(t *testing.T) {
		cfg := base()
		cfg.Notes.DefaultPageSize = 500
		assert.Error(t, ValidateServerConfig(cfg))
	})
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("NOTEKEEPER_API_URL", " https://notes.example.com/ ")
	t.Setenv("NOTEKEEPER_STATE_DIR", t.TempDir())
	t.Setenv("NOTEKEEPER_REQUEST_TIMEOUT", "3s")
	t.Setenv("NOTEKEEPER_LANDING_PATH", "dashboard")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://notes.example.com", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "/dashboard", cfg.LandingPath)
	assert.Equal(t, 50*time.Millisecond, cfg.SettleDelay)
}

func TestLoadConfig_Sanitizes(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("HTTP_COMPRESSION_LEVEL", "42")
	t.Setenv("AUTH_SSO_MODE", "mock")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9, cfg.HTTP.CompressionLevel)
	assert.Equal(t, config.SSOModeMock, cfg.Auth.SSOMode)
}
