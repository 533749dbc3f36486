package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/target/notekeeper/internal/authstate"
)

// Navigator is the navigation side the guard drives.
type Navigator interface {
	// Location returns the current location (path plus optional query).
	Location() string
	// Redirect navigates to path.
	Redirect(path string, opts RedirectOptions) error
	// Attempt identifies the current navigation. It changes on every
	// navigation, including one back to the same location.
	Attempt() uint64
}

// StateSource is the read side of the auth state machine.
type StateSource interface {
	Watch() (<-chan authstate.State, func())
}

// Guard applies Decide against a navigator. It issues at most one redirect per
// navigation attempt, as numbered by the navigator, and never while a
// redirect is still in flight.
type Guard struct {
	nav Navigator
	cfg Config

	mu         sync.Mutex
	attempt    uint64
	redirected bool
	inFlight   bool
}

// New creates a Guard bound to nav.
func New(nav Navigator, cfg Config) *Guard {
	return &Guard{nav: nav, cfg: cfg.withDefaults()}
}

// Config returns the guard's route configuration.
func (g *Guard) Config() Config { return g.cfg }

// Evaluate decides for the navigator's current location and performs the
// redirect when one is due. A repeated redirect decision for the same attempt
// is reported as loading.
func (g *Guard) Evaluate(st authstate.State) (Decision, error) {
	attempt := g.nav.Attempt()
	d := Decide(st, g.nav.Location(), g.cfg)

	g.mu.Lock()
	if attempt != g.attempt {
		g.attempt = attempt
		g.redirected = false
	}
	if d.Action != ActionRedirect {
		g.mu.Unlock()
		return d, nil
	}
	if g.inFlight || g.redirected {
		g.mu.Unlock()
		return Decision{Action: ActionLoading, Reason: "redirect_pending"}, nil
	}
	g.inFlight = true
	g.mu.Unlock()

	err := g.nav.Redirect(d.Target, d.Options)

	g.mu.Lock()
	g.inFlight = false
	if err == nil {
		g.redirected = true
	}
	g.mu.Unlock()

	if err != nil {
		return d, fmt.Errorf("redirect to %s: %w", d.Target, err)
	}
	return d, nil
}

// Await evaluates every snapshot from src until the guard renders or
// redirects, or ctx is done.
func (g *Guard) Await(ctx context.Context, src StateSource) (Decision, error) {
	states, cancel := src.Watch()
	defer cancel()

	last := Decision{Action: ActionLoading, Reason: "auth_initializing"}
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case st, ok := <-states:
			if !ok {
				return last, authstate.ErrClosed
			}
			d, err := g.Evaluate(st)
			if err != nil {
				return d, err
			}
			last = d
			if d.Action != ActionLoading {
				return d, nil
			}
		}
	}
}
