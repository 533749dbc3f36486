// Package authstate owns the client-side view of "is the user signed in, and
// is that answer settled yet". It reconciles the initial session lookup with
// the backend's change-event stream and promotes the result to STABLE only
// after a quiet period.
package authstate

import (
	"fmt"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

// Phase is the auth lifecycle phase.
type Phase string

const (
	// PhaseInitializing: no session check has completed yet.
	PhaseInitializing Phase = "INITIALIZING"
	// PhaseAuthenticated: a session is present, not yet settled.
	PhaseAuthenticated Phase = "AUTHENTICATED"
	// PhaseUnauthenticated: no session, not yet settled.
	PhaseUnauthenticated Phase = "UNAUTHENTICATED"
	// PhaseStable: no transition happened during the settle window.
	PhaseStable Phase = "STABLE"
)

// transitions lists the allowed phase changes. Nothing leads back to
// INITIALIZING, and STABLE is only reachable from a pending phase.
var transitions = map[Phase]map[Phase]struct{}{ //nolint:gochecknoglobals // immutable lookup table
	PhaseInitializing: {
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
	},
	PhaseAuthenticated: {
		PhaseUnauthenticated: {},
		PhaseStable:          {},
	},
	PhaseUnauthenticated: {
		PhaseAuthenticated: {},
		PhaseStable:        {},
	},
	PhaseStable: {
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
	},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Phase) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

func (p Phase) String() string { return string(p) }

// State is an immutable snapshot of the machine.
type State struct {
	Phase    Phase
	Session  *domainauth.Session
	Identity *domainauth.Identity
	// Ready is set once either the initial check or an event has resolved.
	Ready bool
	// Generation counts phase transitions.
	Generation uint64
}

// IsLoading reports whether consumers should hold off on decisions.
func (s State) IsLoading() bool { return s.Phase != PhaseStable }

// IsReady reports whether the auth machinery has resolved at least once.
func (s State) IsReady() bool { return s.Ready }

// SignedIn reports whether an identity is present, settled or not.
func (s State) SignedIn() bool { return s.Identity != nil }

// Settled reports whether the state is STABLE.
func (s State) Settled() bool { return s.Phase == PhaseStable }

func (s State) String() string {
	if s.Identity != nil {
		return fmt.Sprintf("%s(user=%s gen=%d)", s.Phase, s.Identity.UserID, s.Generation)
	}
	return fmt.Sprintf("%s(gen=%d)", s.Phase, s.Generation)
}
