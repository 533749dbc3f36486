package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/target/notekeeper/internal/authstate"
	"github.com/target/notekeeper/internal/guard"
)

const (
	dashboardPath   = "/dashboard"
	notePathPrefix  = dashboardPath + "/notes/"
	newNoteLocation = notePathPrefix + "new"
)

// visit opens location in a fresh history and returns the guard's first
// non-loading decision together with the entry the history ended on.
func visit(ctx context.Context, src guard.StateSource, routes guard.Config, location string) (guard.Decision, guard.Entry, error) {
	hist := guard.NewHistory(location)
	d, err := guard.New(hist, routes).Await(ctx, src)
	return d, hist.Current(), err
}

// waitFor returns the first snapshot from src that satisfies ok.
func waitFor(ctx context.Context, src guard.StateSource, ok func(authstate.State) bool) (authstate.State, error) {
	states, cancel := src.Watch()
	defer cancel()
	var last authstate.State
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case st, open := <-states:
			if !open {
				return last, authstate.ErrClosed
			}
			last = st
			if ok(st) {
				return st, nil
			}
		}
	}
}

func settled(st authstate.State) bool { return st.Settled() }

func settledSignedIn(st authstate.State) bool { return st.Settled() && st.SignedIn() }

func settledSignedOut(st authstate.State) bool { return st.Settled() && !st.SignedIn() }

// signInRequiredError is returned when the guard sends a protected location
// to the sign-in entry point.
type signInRequiredError struct {
	location string
}

func (e *signInRequiredError) Error() string {
	if e.location == "" {
		return "sign in required; run: notekeeper-cli login"
	}
	return fmt.Sprintf("sign in required to open %s; run: notekeeper-cli login --redirect %s", e.location, e.location)
}

// normalizeLocation turns "dashboard/notes/5" into "/dashboard/notes/5".
func normalizeLocation(location string) string {
	location = strings.TrimSpace(location)
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return location
}

// noteIDFromLocation extracts the note ID from /dashboard/notes/{id}.
func noteIDFromLocation(location string) (string, bool) {
	path, _, _ := strings.Cut(location, "?")
	id, ok := strings.CutPrefix(path, notePathPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func notePath(id string) string { return notePathPrefix + id }
