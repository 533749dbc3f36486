package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/notekeeper/config"
	"github.com/target/notekeeper/internal/adapters/devauth"
	"github.com/target/notekeeper/internal/adapters/jwttoken"
	"github.com/target/notekeeper/internal/adapters/oidc"
	redisadapter "github.com/target/notekeeper/internal/adapters/redis"
	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/data/cryptoutil"
	"github.com/target/notekeeper/internal/observability/notify"
	"github.com/target/notekeeper/internal/observability/statsd"
	"github.com/target/notekeeper/internal/ports"
	"github.com/target/notekeeper/internal/service"
)

const sessionKeyPrefix = "notekeeper:session:"

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	IsDev       bool
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Events      ports.AuthEventBus // optional
	Metrics     statsd.Sink        // optional
	Notifier    notify.Sink        // optional
	Logger      *slog.Logger
}

// BuildAuthService wires the auth service: accounts in Postgres, sessions and
// sign-in throttling in Redis, JWT access tokens and the SSO provider selected
// by AUTH_SSO_MODE. A misconfigured SSO provider disables SSO only.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	if cfg.DB == nil {
		return nil, errors.New("auth service requires a database")
	}
	if cfg.RedisClient == nil {
		return nil, errors.New("auth service requires a redis client")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	tokens, err := jwttoken.New(jwttoken.Options{Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	return service.NewAuthService(service.AuthServiceOptions{
		Stores: service.AuthStores{
			Accounts: data.NewAccountRepo(cfg.DB),
			Sessions: redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, sessionKeyPrefix),
			Events:   cfg.Events,
			Cache:    data.NewRedisCacheRepo(cfg.RedisClient),
		},
		Security: service.AuthSecurity{
			Tokens:   tokens,
			Hasher:   cryptoutil.NewBcryptHasher(0),
			Provider: buildSSOProvider(ctx, cfg, logger),
		},
		Policy: service.AuthPolicy{
			AccessTokenTTL:      cfg.Auth.AccessTokenTTL,
			SessionTTL:          cfg.Auth.SessionTTL,
			RequireConfirmation: cfg.Auth.RequireConfirmation,
			MaxFailedAttempts:   cfg.Auth.MaxFailedAttempts,
			LockoutWindow:       cfg.Auth.LockoutWindow,
		},
		Observers: service.AuthObservers{
			Logger:   logger,
			Metrics:  cfg.Metrics,
			Notifier: cfg.Notifier,
		},
	}), nil
}

// jwtSecret returns the configured signing secret. Development builds without
// one get a random per-process secret, which invalidates tokens on restart.
func jwtSecret(cfg AuthConfig, logger *slog.Logger) (string, error) {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret, nil
	}
	if !cfg.IsDev {
		return "", errors.New("AUTH_JWT_SECRET is required")
	}
	secret, err := cryptoutil.RandomToken(32)
	if err != nil {
		return "", fmt.Errorf("generate dev jwt secret: %w", err)
	}
	logger.Warn("AUTH_JWT_SECRET not set; using an ephemeral development secret")
	return secret, nil
}

//nolint:ireturn // the provider is selected at runtime.
func buildSSOProvider(ctx context.Context, cfg AuthConfig, logger *slog.Logger) ports.AuthProvider {
	switch cfg.Auth.SSOMode {
	case config.SSOModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			Subject: cfg.Auth.DevAuth.UserID,
			Email:   cfg.Auth.DevAuth.Email,
		})
		if err != nil {
			logger.Warn("failed to create dev auth provider, SSO disabled", "error", err)
			return nil
		}
		return prov

	case config.SSOModeOAuth:
		oauth := cfg.Auth.OAuth
		if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
			logger.Warn("AUTH_SSO_MODE=oauth but required config missing; SSO disabled",
				"discovery_url_empty", oauth.DiscoveryURL == "",
				"client_id_empty", oauth.ClientID == "",
				"client_secret_empty", oauth.ClientSecret == "",
			)
			return nil
		}
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
		})
		if err != nil {
			logger.Warn("failed to create OIDC provider, SSO disabled", "error", err)
			return nil
		}
		return prov

	default:
		return nil
	}
}
