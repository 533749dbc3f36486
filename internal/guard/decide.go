// Package guard decides whether protected content may render, must wait, or
// must redirect to the sign-in entry point, based on the auth state machine's
// current snapshot.
package guard

import (
	"net/url"
	"strings"

	"github.com/target/notekeeper/internal/authstate"
)

const (
	DefaultEntryPath     = "/auth/login"
	DefaultRedirectParam = "redirect_uri"
	DefaultLandingPath   = "/dashboard"
)

// Action is the outcome of a guard decision.
type Action int

const (
	// ActionLoading renders the loading placeholder.
	ActionLoading Action = iota
	// ActionRender renders the requested content (or the sign-in form at the entry point).
	ActionRender
	// ActionRedirect navigates to Decision.Target.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionLoading:
		return "loading"
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// RedirectOptions mirror the navigator's redirect options.
type RedirectOptions struct {
	// Replace swaps the current history entry instead of pushing a new one.
	Replace bool
	// CarryState attaches the originating location to the new entry.
	CarryState bool
}

// Config names the routes the guard works with.
type Config struct {
	EntryPath     string
	RedirectParam string
	LandingPath   string
}

// DefaultConfig returns the standard route layout.
func DefaultConfig() Config {
	return Config{
		EntryPath:     DefaultEntryPath,
		RedirectParam: DefaultRedirectParam,
		LandingPath:   DefaultLandingPath,
	}
}

func (c Config) withDefaults() Config {
	if c.EntryPath == "" {
		c.EntryPath = DefaultEntryPath
	}
	if c.RedirectParam == "" {
		c.RedirectParam = DefaultRedirectParam
	}
	if c.LandingPath == "" {
		c.LandingPath = DefaultLandingPath
	}
	return c
}

// Decision is the result of Decide.
type Decision struct {
	Action  Action
	Target  string
	Options RedirectOptions
	// Reason is a short machine-readable label for logs.
	Reason string
}

// Decide maps (state, location) to a decision. It never redirects unless the
// state is STABLE.
func Decide(st authstate.State, location string, cfg Config) Decision {
	cfg = cfg.withDefaults()
	if st.Phase != authstate.PhaseStable {
		return Decision{Action: ActionLoading, Reason: "auth_" + strings.ToLower(st.Phase.String())}
	}

	path, query := splitLocation(location)
	if path == cfg.EntryPath {
		if !st.SignedIn() {
			return Decision{Action: ActionRender, Reason: "entry_form"}
		}
		return Decision{
			Action:  ActionRedirect,
			Target:  SafeRedirectPath(query.Get(cfg.RedirectParam), cfg),
			Options: RedirectOptions{Replace: true},
			Reason:  "entry_bounce",
		}
	}

	if st.SignedIn() {
		return Decision{Action: ActionRender, Reason: "authenticated"}
	}
	return Decision{
		Action:  ActionRedirect,
		Target:  EntryURL(location, cfg),
		Options: RedirectOptions{Replace: true, CarryState: true},
		Reason:  "unauthenticated",
	}
}

// EntryURL builds the entry-point URL that carries location back after sign-in.
func EntryURL(location string, cfg Config) string {
	cfg = cfg.withDefaults()
	if location == "" {
		return cfg.EntryPath
	}
	q := url.Values{}
	q.Set(cfg.RedirectParam, location)
	return cfg.EntryPath + "?" + q.Encode()
}

// SafeRedirectPath returns candidate if it is a local absolute path that does
// not point back at the entry point, otherwise the landing path.
func SafeRedirectPath(candidate string, cfg Config) string {
	cfg = cfg.withDefaults()
	if candidate == "" || strings.ContainsRune(candidate, '\\') {
		return cfg.LandingPath
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return cfg.LandingPath
	}
	if u.Path == cfg.EntryPath {
		return cfg.LandingPath
	}
	return candidate
}

func splitLocation(location string) (string, url.Values) {
	u, err := url.Parse(location)
	if err != nil {
		return location, url.Values{}
	}
	return u.Path, u.Query()
}
