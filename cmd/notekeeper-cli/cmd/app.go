package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/notekeeper/config"
	"github.com/target/notekeeper/internal/adapters/apiclient"
	"github.com/target/notekeeper/internal/adapters/boltsession"
	"github.com/target/notekeeper/internal/authstate"
	"github.com/target/notekeeper/internal/bootstrap"
	"github.com/target/notekeeper/internal/guard"
)

// app is the per-invocation client: the persisted session, the API clients and
// the auth state machine that every command consults.
type app struct {
	cfg     config.ClientConfig
	routes  guard.Config
	logger  *slog.Logger
	store   *boltsession.Store
	backend *apiclient.AuthBackend
	machine *authstate.Machine
	notes   *apiclient.Notes
	out     io.Writer
}

func loadClientConfig() (config.ClientConfig, error) {
	cfg, err := bootstrap.LoadClientConfig()
	if err != nil {
		return cfg, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	cfg.Sanitize()
	return cfg, nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp wires the client and starts the auth state machine. Callers must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadClientConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr())

	client, err := apiclient.New(apiclient.Options{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}
	store, err := boltsession.Open(cfg.SessionDBPath(), bootstrap.CreateEncryptor(cfg.SessionKey, logger))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	backend := apiclient.NewAuthBackend(apiclient.AuthBackendOptions{
		Client: client,
		Store:  store,
		Logger: logger,
	})
	machine := authstate.New(authstate.Options{
		Backend: backend,
		Timing: authstate.Timing{
			SettleDelay: cfg.SettleDelay,
			InitTimeout: cfg.InitTimeout,
		},
		Observers: authstate.Observers{
			Notifier: noticePrinter{w: cmd.ErrOrStderr()},
			Logger:   logger,
		},
	})

	a := &app{
		cfg: cfg,
		routes: guard.Config{
			EntryPath:     guard.DefaultEntryPath,
			RedirectParam: guard.DefaultRedirectParam,
			LandingPath:   cfg.LandingPath,
		},
		logger:  logger,
		store:   store,
		backend: backend,
		machine: machine,
		notes:   apiclient.NewNotes(client, backend),
		out:     cmd.OutOrStdout(),
	}
	if err := machine.Start(cmd.Context()); err != nil {
		return nil, errors.Join(fmt.Errorf("start auth: %w", err), a.Close())
	}
	return a, nil
}

// Close releases the machine, the backend's event stream and the session file.
func (a *app) Close() error {
	return errors.Join(a.machine.Close(), a.backend.Close(), a.store.Close())
}

// waitBudget bounds how long a command waits for the auth state to settle.
// The machine gives up on the initial check after InitTimeout on its own.
func (a *app) waitBudget() time.Duration {
	return a.cfg.InitTimeout + a.cfg.SettleDelay + time.Second
}

// visit asks the guard about location once the auth state allows a decision.
func (a *app) visit(ctx context.Context, location string) (guard.Decision, guard.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.waitBudget())
	defer cancel()
	return visit(ctx, a.machine, a.routes, location)
}

// waitFor blocks until a snapshot satisfies ok.
func (a *app) waitFor(ctx context.Context, ok func(authstate.State) bool) (authstate.State, error) {
	ctx, cancel := context.WithTimeout(ctx, a.waitBudget())
	defer cancel()
	return waitFor(ctx, a.machine, ok)
}

// require lets a protected command proceed only when the guard renders location.
func (a *app) require(ctx context.Context, location string) (authstate.State, error) {
	d, entry, err := a.visit(ctx, location)
	if err != nil {
		return authstate.State{}, fmt.Errorf("wait for sign-in state: %w", err)
	}
	if d.Action == guard.ActionRedirect {
		return authstate.State{}, &signInRequiredError{location: entry.From}
	}
	return a.machine.State(), nil
}
