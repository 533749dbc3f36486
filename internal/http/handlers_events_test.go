package httpx

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/notekeeper/internal/adapters/apiclient"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	authmocks "github.com/target/notekeeper/internal/mocks/auth"
)

func TestAuthEvents_StreamsOwnSessionUntilSignedOut(t *testing.T) {
	auth := newFakeAuth()
	s1 := auth.add("s1", "u1")
	auth.add("s2", "u1")
	bus := authmocks.NewMemoryEventBus()
	srv := httptest.NewServer(newTestRouter(t, auth, newFakeNotes(), func(rs *RouterServices) {
		rs.Events = bus
	}))
	t.Cleanup(srv.Close)

	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		got []domainauth.ChangeEvent
	)
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got)
	}
	done := make(chan error, 1)
	go func() {
		done <- client.StreamEvents(ctx, s1.AccessToken, func(ev domainauth.ChangeEvent) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
	}()

	refreshed := s1
	refreshed.AccessToken = "access-next"
	refreshed.RefreshToken = "refresh-next"
	// The subscription is registered asynchronously; publish until the first event arrives.
	require.Eventually(t, func() bool {
		if count() > 0 {
			return true
		}
		_ = bus.Publish(ctx, domainauth.ChangeEvent{
			Kind:      domainauth.EventTokenRefreshed,
			Session:   &refreshed,
			SessionID: "s1",
			UserID:    "u1",
		})
		return false
	}, 3*time.Second, 20*time.Millisecond)

	// Another session of the same user signing out must not end this stream.
	require.NoError(t, bus.Publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventSignedOut, SessionID: "s2", UserID: "u1"}))
	require.NoError(t, bus.Publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventSignedOut, SessionID: "s1", UserID: "u1"}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("stream did not end after sign-out")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(got), 2)
	last := got[len(got)-1]
	assert.Equal(t, domainauth.EventSignedOut, last.Kind)
	assert.Equal(t, "s1", last.SessionID)
	for _, ev := range got[:len(got)-1] {
		assert.Equal(t, domainauth.EventTokenRefreshed, ev.Kind)
		require.NotNil(t, ev.Session)
		assert.Equal(t, "s1", ev.Session.ID)
		assert.Empty(t, ev.Session.AccessToken)
		assert.Empty(t, ev.Session.RefreshToken)
	}
}

func TestAuthEvents_Heartbeat(t *testing.T) {
	auth := newFakeAuth()
	auth.add("s1", "u1")
	srv := httptest.NewServer(newTestRouter(t, auth, newFakeNotes(), func(rs *RouterServices) {
		rs.EventHeartbeat = 10 * time.Millisecond
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auth/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer access-s1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if sc.Text() == ": ping" {
			break
		}
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, ": connected", lines[0])
	assert.Equal(t, ": ping", lines[len(lines)-1])
}

func TestAuthEvents_Rejections(t *testing.T) {
	auth := newFakeAuth()
	auth.add("s1", "u1")

	t.Run("unauthenticated", func(t *testing.T) {
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/auth/v1/events", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no event bus", func(t *testing.T) {
		router := newTestRouter(t, auth, newFakeNotes(), func(rs *RouterServices) { rs.Events = nil })

		rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/auth/v1/events", nil), "access-s1"))

		assert.Equal(t, http.StatusNotImplemented, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "events_unavailable"))
	})
}
