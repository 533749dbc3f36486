package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/notekeeper/config"
	redisadapter "github.com/target/notekeeper/internal/adapters/redis"
	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/observability/notify"
	"github.com/target/notekeeper/internal/observability/notify/slack"
	"github.com/target/notekeeper/internal/observability/statsd"
	"github.com/target/notekeeper/internal/service"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth          *service.AuthService
	Notes         *service.NoteService
	Events        *redisadapter.EventBus
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink *statsd.Client // nil when metrics are disabled
	Notifier    notify.Sink
}

// Close releases observability resources.
func (o ObservabilityContainer) Close() error {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices builds the service container from connected infrastructure.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)
	events := redisadapter.NewEventBus(deps.RedisClient, redisadapter.EventBusOptions{Logger: logger})

	var metricsSink statsd.Sink
	if obs.MetricsSink != nil {
		metricsSink = obs.MetricsSink
	}

	auth, err := BuildAuthService(ctx, AuthConfig{
		Auth:        cfg.Auth,
		IsDev:       cfg.IsDev,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Events:      events,
		Metrics:     metricsSink,
		Notifier:    obs.Notifier,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build auth service: %w", err)
	}

	notes := service.NewNoteService(service.NoteServiceOptions{
		Repo: data.NewNoteRepo(deps.DB),
		Paging: service.NotePaging{
			DefaultLimit: cfg.Notes.DefaultPageSize,
			MaxLimit:     cfg.Notes.MaxPageSize,
		},
		Logger: logger,
	})

	return ServiceContainer{
		Auth:          auth,
		Notes:         notes,
		Events:        events,
		Observability: obs,
	}, nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink: metricsSink,
		Notifier:    buildNotifier(obsLogger, cfg.Notifications),
	}
}

// buildNotifier always logs notices and additionally forwards them to Slack
// when notifications are enabled.
//
//nolint:ireturn // a single sink or a fanout, chosen by config.
func buildNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) notify.Sink {
	logSink := notify.LogSink{Logger: logger.With("component", "notifier")}
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return logSink
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
		Username:   cfg.Slack.Username,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
		return logSink
	}
	return notify.Fanout{logSink, client}
}

// ServiceOrchestrationConfig contains dependencies for running the server.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP until SIGINT/SIGTERM or a server
// failure, then shuts down gracefully.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})
	return serveUntilDone(sigCtx, server, logger)
}

// serveUntilDone runs server until ctx is done or ListenAndServe fails.
func serveUntilDone(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(ctx),
			Server:  server,
			Logger:  logger,
		})
	})

	return g.Wait()
}
