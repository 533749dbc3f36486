package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/notekeeper/internal/authstate"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

func stateOf(phase authstate.Phase, signedIn bool) authstate.State {
	st := authstate.State{Phase: phase, Ready: phase != authstate.PhaseInitializing}
	if signedIn {
		sess := &domainauth.Session{ID: "s1", UserID: "u1", Email: "ann@example.com"}
		st.Session = sess
		st.Identity = domainauth.IdentityFrom(sess)
	}
	return st
}

func TestDecide_Table(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name     string
		state    authstate.State
		location string
		want     Decision
	}{
		{
			name:     "initializing waits",
			state:    stateOf(authstate.PhaseInitializing, false),
			location: "/dashboard",
			want:     Decision{Action: ActionLoading, Reason: "auth_initializing"},
		},
		{
			name:     "authenticated but unsettled waits",
			state:    stateOf(authstate.PhaseAuthenticated, true),
			location: "/dashboard",
			want:     Decision{Action: ActionLoading, Reason: "auth_authenticated"},
		},
		{
			name:     "unauthenticated but unsettled waits",
			state:    stateOf(authstate.PhaseUnauthenticated, false),
			location: "/dashboard",
			want:     Decision{Action: ActionLoading, Reason: "auth_unauthenticated"},
		},
		{
			name:     "stable with identity renders",
			state:    stateOf(authstate.PhaseStable, true),
			location: "/dashboard/notes/5",
			want:     Decision{Action: ActionRender, Reason: "authenticated"},
		},
		{
			name:     "stable without identity redirects carrying location",
			state:    stateOf(authstate.PhaseStable, false),
			location: "/dashboard/notes/5",
			want: Decision{
				Action:  ActionRedirect,
				Target:  "/auth/login?redirect_uri=%2Fdashboard%2Fnotes%2F5",
				Options: RedirectOptions{Replace: true, CarryState: true},
				Reason:  "unauthenticated",
			},
		},
		{
			name:     "entry point without identity shows the form",
			state:    stateOf(authstate.PhaseStable, false),
			location: "/auth/login?redirect_uri=%2Fdashboard",
			want:     Decision{Action: ActionRender, Reason: "entry_form"},
		},
		{
			name:     "entry point with identity bounces to landing",
			state:    stateOf(authstate.PhaseStable, true),
			location: "/auth/login",
			want: Decision{
				Action:  ActionRedirect,
				Target:  "/dashboard",
				Options: RedirectOptions{Replace: true},
				Reason:  "entry_bounce",
			},
		},
		{
			name:     "entry point with identity returns to carried location",
			state:    stateOf(authstate.PhaseStable, true),
			location: "/auth/login?redirect_uri=%2Fdashboard%2Fnotes%2F5%3Fview%3Dmine",
			want: Decision{
				Action:  ActionRedirect,
				Target:  "/dashboard/notes/5?view=mine",
				Options: RedirectOptions{Replace: true},
				Reason:  "entry_bounce",
			},
		},
		{
			name:     "entry point ignores off-site redirect",
			state:    stateOf(authstate.PhaseStable, true),
			location: "/auth/login?redirect_uri=https%3A%2F%2Fevil.example%2F",
			want: Decision{
				Action:  ActionRedirect,
				Target:  "/dashboard",
				Options: RedirectOptions{Replace: true},
				Reason:  "entry_bounce",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.location, cfg))
		})
	}
}

func TestDecide_NeverRedirectsBeforeStable(t *testing.T) {
	locations := []string{"/dashboard", "/dashboard/notes/5", "/auth/login", "/auth/login?redirect_uri=%2Fdashboard"}
	for _, phase := range []authstate.Phase{
		authstate.PhaseInitializing,
		authstate.PhaseAuthenticated,
		authstate.PhaseUnauthenticated,
	} {
		for _, signedIn := range []bool{true, false} {
			for _, loc := range locations {
				d := Decide(stateOf(phase, signedIn), loc, Config{})
				assert.Equal(t, ActionLoading, d.Action, "phase=%s signedIn=%v loc=%s", phase, signedIn, loc)
			}
		}
	}
}

func TestSafeRedirectPath(t *testing.T) {
	cfg := DefaultConfig()
	tests := map[string]string{
		"":                           "/dashboard",
		"/dashboard/notes/5":         "/dashboard/notes/5",
		"/dashboard?view=public":     "/dashboard?view=public",
		"dashboard":                  "/dashboard",
		"https://evil.example/x":     "/dashboard",
		"//evil.example/x":           "/dashboard",
		"/\\evil.example":            "/dashboard",
		"/auth/login":                "/dashboard",
		"/auth/login?redirect_uri=/": "/dashboard",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeRedirectPath(in, cfg), "candidate %q", in)
	}
}

func TestEntryURL(t *testing.T) {
	assert.Equal(t, "/auth/login", EntryURL("", Config{}))
	assert.Equal(t, "/signin?next=%2Fa%3Fb%3Dc", EntryURL("/a?b=c", Config{EntryPath: "/signin", RedirectParam: "next"}))
}

func TestGuard_NoRedirectWhileUnsettled(t *testing.T) {
	sequences := [][]authstate.State{
		{stateOf(authstate.PhaseInitializing, false), stateOf(authstate.PhaseUnauthenticated, false)},
		{stateOf(authstate.PhaseInitializing, false), stateOf(authstate.PhaseAuthenticated, true), stateOf(authstate.PhaseUnauthenticated, false)},
		{stateOf(authstate.PhaseUnauthenticated, false), stateOf(authstate.PhaseAuthenticated, true), stateOf(authstate.PhaseUnauthenticated, false)},
	}
	for i, seq := range sequences {
		nav := NewHistory("/dashboard/notes/5")
		g := New(nav, DefaultConfig())
		for _, st := range seq {
			d, err := g.Evaluate(st)
			require.NoError(t, err)
			assert.Equal(t, ActionLoading, d.Action, "sequence %d at %s", i, st)
		}
		assert.Zero(t, nav.Redirects(), "sequence %d redirected early", i)
	}
}

func TestGuard_RedirectsOncePerAttempt(t *testing.T) {
	nav := &stuckNavigator{location: "/dashboard"}
	g := New(nav, DefaultConfig())
	out := stateOf(authstate.PhaseStable, false)

	d, err := g.Evaluate(out)
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)

	// The navigator has not moved yet; repeated snapshots must not redirect again.
	for i := 0; i < 3; i++ {
		d, err = g.Evaluate(out)
		require.NoError(t, err)
		assert.Equal(t, ActionLoading, d.Action)
		assert.Equal(t, "redirect_pending", d.Reason)
	}
	assert.Equal(t, 1, nav.calls)

	// A new navigation attempt may redirect again.
	nav.navigate("/dashboard/notes/9")
	d, err = g.Evaluate(out)
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, 2, nav.calls)

	// So may a fresh navigation to the same location.
	nav.navigate("/dashboard/notes/9")
	d, err = g.Evaluate(out)
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, 3, nav.calls)
}

func TestGuard_RevisitingSameLocationRedirectsAgain(t *testing.T) {
	nav := NewHistory("/dashboard")
	g := New(nav, DefaultConfig())
	out := stateOf(authstate.PhaseStable, false)

	d, err := g.Evaluate(out)
	require.NoError(t, err)
	require.Equal(t, ActionRedirect, d.Action)

	nav.Push("/dashboard")
	d, err = g.Evaluate(out)
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/auth/login?redirect_uri=%2Fdashboard", nav.Location())
	assert.Equal(t, 2, nav.Redirects())
}

func TestGuard_RedirectErrorAllowsRetry(t *testing.T) {
	nav := &stuckNavigator{location: "/dashboard", err: errors.New("navigation blocked")}
	g := New(nav, DefaultConfig())

	_, err := g.Evaluate(stateOf(authstate.PhaseStable, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigation blocked")

	nav.err = nil
	d, err := g.Evaluate(stateOf(authstate.PhaseStable, false))
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, 2, nav.calls)
}

func TestGuard_RedirectRoundTrip(t *testing.T) {
	nav := NewHistory("/dashboard/notes/5")
	g := New(nav, DefaultConfig())

	d, err := g.Evaluate(stateOf(authstate.PhaseStable, false))
	require.NoError(t, err)
	require.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/auth/login?redirect_uri=%2Fdashboard%2Fnotes%2F5", nav.Location())
	assert.Equal(t, "/dashboard/notes/5", nav.Current().From)
	assert.Equal(t, 1, nav.Len())

	// At the entry point, the form renders until sign-in settles.
	d, err = g.Evaluate(stateOf(authstate.PhaseStable, false))
	require.NoError(t, err)
	assert.Equal(t, ActionRender, d.Action)

	d, err = g.Evaluate(stateOf(authstate.PhaseAuthenticated, true))
	require.NoError(t, err)
	assert.Equal(t, ActionLoading, d.Action)

	d, err = g.Evaluate(stateOf(authstate.PhaseStable, true))
	require.NoError(t, err)
	require.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/dashboard/notes/5", nav.Location())

	d, err = g.Evaluate(stateOf(authstate.PhaseStable, true))
	require.NoError(t, err)
	assert.Equal(t, ActionRender, d.Action)
	assert.Equal(t, 2, nav.Redirects())
}

func TestGuard_EntryPointBounce(t *testing.T) {
	nav := NewHistory("/auth/login")
	g := New(nav, Config{})

	d, err := g.Evaluate(stateOf(authstate.PhaseStable, true))
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/dashboard", nav.Location())
	assert.Empty(t, nav.Current().From)
}

func TestHistory_PushAndReplace(t *testing.T) {
	h := NewHistory("/a")
	h.Push("/b")
	require.NoError(t, h.Redirect("/c", RedirectOptions{}))
	assert.Equal(t, 3, h.Len())
	require.NoError(t, h.Redirect("/d", RedirectOptions{Replace: true, CarryState: true}))
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, Entry{Location: "/d", From: "/c"}, h.Current())
	assert.Equal(t, uint64(3), h.Attempt())
}

func TestGuard_Await(t *testing.T) {
	src := &scriptedSource{states: []authstate.State{
		stateOf(authstate.PhaseInitializing, false),
		stateOf(authstate.PhaseUnauthenticated, false),
		stateOf(authstate.PhaseStable, false),
	}}
	nav := NewHistory("/dashboard")
	g := New(nav, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := g.Await(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/auth/login?redirect_uri=%2Fdashboard", nav.Location())
}

func TestGuard_AwaitStopsOnContext(t *testing.T) {
	src := &scriptedSource{states: []authstate.State{stateOf(authstate.PhaseInitializing, false)}, keepOpen: true}
	g := New(NewHistory("/dashboard"), DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d, err := g.Await(ctx, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ActionLoading, d.Action)
}

func TestGuard_AwaitClosedSource(t *testing.T) {
	src := &scriptedSource{states: []authstate.State{stateOf(authstate.PhaseAuthenticated, true)}}
	g := New(NewHistory("/dashboard"), DefaultConfig())

	_, err := g.Await(context.Background(), src)
	assert.ErrorIs(t, err, authstate.ErrClosed)
}

// stuckNavigator accepts redirects without moving.
type stuckNavigator struct {
	location string
	attempt  uint64
	calls    int
	err      error
}

func (n *stuckNavigator) Location() string { return n.location }

func (n *stuckNavigator) Attempt() uint64 { return n.attempt }

func (n *stuckNavigator) navigate(location string) {
	n.location = location
	n.attempt++
}

func (n *stuckNavigator) Redirect(string, RedirectOptions) error {
	n.calls++
	return n.err
}

type scriptedSource struct {
	states   []authstate.State
	keepOpen bool
}

func (s *scriptedSource) Watch() (<-chan authstate.State, func()) {
	ch := make(chan authstate.State, len(s.states))
	for _, st := range s.states {
		ch <- st
	}
	if !s.keepOpen {
		close(ch)
	}
	return ch, func() {}
}
