package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/notekeeper/config"
	redisadapter "github.com/target/notekeeper/internal/adapters/redis"
	"github.com/target/notekeeper/internal/bootstrap"
	"github.com/target/notekeeper/internal/service"
)

// withDatabase runs f with a connected database, bounded by timeout and
// interrupted by SIGINT/SIGTERM.
func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

// withAuthService runs f with an auth service wired to Postgres and Redis, so
// account changes publish events and revoke sessions like the server does.
func withAuthService(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB, *service.AuthService) error,
) error {
	if !hasRedisConfig(&cmdCtx.Config.Redis) {
		return errors.New("redis is not configured; sessions cannot be revoked")
	}
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
			RedisConfig: cmdCtx.Config.Redis,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}()

		auth, err := bootstrap.BuildAuthService(ctx, bootstrap.AuthConfig{
			Auth:        adminAuthConfig(cmdCtx.Config.Auth),
			IsDev:       cmdCtx.Config.IsDev,
			DB:          db,
			RedisClient: redisClient,
			Events:      redisadapter.NewEventBus(redisClient, redisadapter.EventBusOptions{Logger: cmdCtx.Logger}),
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		return f(ctx, db, auth)
	})
}

// adminAuthConfig drops SSO: admin commands never sign anyone in, and OIDC
// discovery would add a network round trip.
func adminAuthConfig(cfg config.AuthConfig) config.AuthConfig {
	cfg.SSOMode = config.SSOModeNone
	return cfg
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

