package authstate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	mocks "github.com/target/notekeeper/internal/mocks/auth"
	"github.com/target/notekeeper/internal/observability/notify"
	"github.com/target/notekeeper/internal/observability/statsd"
)

const waitFor = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type noticeLog struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (l *noticeLog) Notify(_ context.Context, n notify.Notice) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
	return nil
}

func (l *noticeLog) All() []notify.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Notice(nil), l.notices...)
}

func (l *noticeLog) Last() notify.Notice {
	all := l.All()
	if len(all) == 0 {
		return notify.Notice{}
	}
	return all[len(all)-1]
}

type harness struct {
	m       *Machine
	backend *mocks.FakeBackend
	clock   *manualClock
	notices *noticeLog
	metrics *statsd.Recorder
	logs    *syncBuffer
}

func newHarness(t *testing.T, backend *mocks.FakeBackend, timing Timing) *harness {
	t.Helper()
	h := &harness{
		backend: backend,
		clock:   newManualClock(),
		notices: &noticeLog{},
		metrics: &statsd.Recorder{},
		logs:    &syncBuffer{},
	}
	timing.Clock = h.clock
	h.m = New(Options{
		Backend: backend,
		Timing:  timing,
		Observers: Observers{
			Notifier: h.notices,
			Logger:   slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
			Metrics:  h.metrics,
		},
	})
	t.Cleanup(func() { _ = h.m.Close() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.Start(context.Background()))
}

func (h *harness) waitPhase(t *testing.T, phase Phase) State {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State().Phase == phase }, waitFor, time.Millisecond,
		"phase never reached %s, last state %s", phase, h.m.State())
	return h.m.State()
}

func (h *harness) waitGeneration(t *testing.T, gen uint64) State {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State().Generation == gen }, waitFor, time.Millisecond,
		"generation never reached %d, last state %s", gen, h.m.State())
	return h.m.State()
}

func (h *harness) transitionsTo(phase Phase) []statsd.Sample {
	var out []statsd.Sample
	for _, s := range h.metrics.Named("auth.phase.transition") {
		if s.Tags["to"] == string(phase) {
			out = append(out, s)
		}
	}
	return out
}

func session(id, user string) *domainauth.Session {
	return &domainauth.Session{ID: id, UserID: user, Email: user + "@example.com"}
}

func signedIn(sess *domainauth.Session) domainauth.ChangeEvent {
	return domainauth.ChangeEvent{Kind: domainauth.EventSignedIn, Session: sess, SessionID: sess.ID, UserID: sess.UserID}
}

func signedOut() domainauth.ChangeEvent {
	return domainauth.ChangeEvent{Kind: domainauth.EventSignedOut}
}

func TestNew_InitialState(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{})

	st := h.m.State()
	assert.Equal(t, PhaseInitializing, st.Phase)
	assert.False(t, st.IsReady())
	assert.True(t, st.IsLoading())
	assert.Nil(t, st.Identity)
	assert.Equal(t, DefaultSettleDelay, h.m.timing.SettleDelay)
	assert.Equal(t, DefaultInitTimeout, h.m.timing.InitTimeout)
	assert.Equal(t, DefaultSignOutTimeout, h.m.timing.SignOutTimeout)
}

func TestNew_PanicsWithoutBackend(t *testing.T) {
	assert.Panics(t, func() { New(Options{}) })
}

func TestMachine_SubscribesBeforeInitialCheck(t *testing.T) {
	t.Run("initial check resolves first", func(t *testing.T) {
		backend := &mocks.FakeBackend{}
		streamsAtCheck := -1
		backend.OnSessionCall = func() { streamsAtCheck = len(backend.Streams()) }
		backend.SessionFunc = func(context.Context) (*domainauth.Session, error) {
			return session("s1", "u1"), nil
		}
		h := newHarness(t, backend, Timing{})
		h.start(t)

		st := h.waitPhase(t, PhaseAuthenticated)
		require.NotNil(t, st.Identity)
		assert.Equal(t, "u1", st.Identity.UserID)
		assert.True(t, st.IsReady())
		assert.Equal(t, []string{mocks.CallSubscribe, mocks.CallCurrentSession}, backend.Calls())
		assert.Equal(t, 1, streamsAtCheck)

		assert.Equal(t, 1, backend.Emit(signedOut()))
		st = h.waitPhase(t, PhaseUnauthenticated)
		assert.Nil(t, st.Identity)
		assert.Nil(t, st.Session)
	})

	t.Run("change event resolves first", func(t *testing.T) {
		release := make(chan struct{})
		backend := &mocks.FakeBackend{
			SessionFunc: func(context.Context) (*domainauth.Session, error) {
				<-release
				return nil, nil
			},
		}
		h := newHarness(t, backend, Timing{})
		h.start(t)

		require.Eventually(t, func() bool { return len(backend.Streams()) == 1 }, waitFor, time.Millisecond)
		assert.Equal(t, 1, backend.Emit(signedIn(session("s1", "u1"))))
		h.waitPhase(t, PhaseAuthenticated)

		// The stale "no session" answer must not undo the event.
		close(release)
		require.Eventually(t, func() bool {
			return strings.Contains(h.logs.String(), "initial session check superseded")
		}, waitFor, time.Millisecond)

		st := h.m.State()
		assert.Equal(t, PhaseAuthenticated, st.Phase)
		require.NotNil(t, st.Identity)
		assert.Equal(t, "u1", st.Identity.UserID)
		assert.Equal(t, uint64(1), st.Generation)
	})
}

func TestMachine_StartTwice(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{})
	h.start(t)
	assert.ErrorIs(t, h.m.Start(context.Background()), ErrAlreadyStarted)
}

func TestMachine_SubscribeFailureStillResolves(t *testing.T) {
	backend := &mocks.FakeBackend{SubscribeErr: errors.New("stream unavailable")}
	h := newHarness(t, backend, Timing{})
	h.start(t)

	st := h.waitPhase(t, PhaseUnauthenticated)
	assert.True(t, st.IsReady())
	assert.Contains(t, h.logs.String(), "auth change subscription failed")
}

func TestMachine_SettlesAfterQuietPeriod(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{SettleDelay: 50 * time.Millisecond})
	h.start(t)
	h.waitPhase(t, PhaseUnauthenticated)

	h.clock.Advance(49 * time.Millisecond)
	assert.Equal(t, PhaseUnauthenticated, h.m.State().Phase)

	h.clock.Advance(time.Millisecond)
	st := h.waitPhase(t, PhaseStable)
	assert.False(t, st.IsLoading())
	assert.False(t, st.SignedIn())
	assert.Equal(t, uint64(2), st.Generation)
}

func TestMachine_OnlyLastRapidTransitionSettles(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{SettleDelay: 50 * time.Millisecond})
	h.start(t)
	h.waitGeneration(t, 1)

	sess := session("s1", "u1")
	for i := 0; i < 5; i++ {
		ev := signedIn(sess)
		if i%2 == 1 {
			ev = signedOut()
		}
		require.Equal(t, 1, h.backend.Emit(ev))
		h.waitGeneration(t, uint64(i+2))

		// Each step lands inside the previous settle window.
		h.clock.Advance(30 * time.Millisecond)
		assert.NotEqual(t, PhaseStable, h.m.State().Phase, "step %d settled early", i)
	}

	h.clock.Advance(20 * time.Millisecond)
	st := h.waitPhase(t, PhaseStable)
	assert.True(t, st.SignedIn())
	assert.Equal(t, uint64(7), st.Generation)
	assert.Len(t, h.transitionsTo(PhaseStable), 1)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestMachine_StaleSettleTimerIgnored(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{SettleDelay: 50 * time.Millisecond})
	h.clock.leaky = true
	h.start(t)
	h.waitGeneration(t, 1)

	sess := session("s1", "u1")
	for i := 0; i < 4; i++ {
		ev := signedIn(sess)
		if i%2 == 1 {
			ev = signedOut()
		}
		require.Equal(t, 1, h.backend.Emit(ev))
		h.waitGeneration(t, uint64(i+2))
	}

	// Every settle timer fires at the same instant; only generation 5 counts.
	h.clock.Advance(50 * time.Millisecond)
	st := h.waitPhase(t, PhaseStable)
	assert.False(t, st.SignedIn())
	assert.Equal(t, uint64(6), st.Generation)

	require.Never(t, func() bool { return h.m.State().Generation != 6 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, h.transitionsTo(PhaseStable), 1)
}

func TestMachine_InitialCheckErrorFailsClosed(t *testing.T) {
	backend := &mocks.FakeBackend{
		SessionFunc: func(context.Context) (*domainauth.Session, error) {
			return nil, errors.New("backend unreachable")
		},
	}
	h := newHarness(t, backend, Timing{})
	h.start(t)

	st := h.waitPhase(t, PhaseUnauthenticated)
	assert.True(t, st.IsReady())
	require.Len(t, h.transitionsTo(PhaseUnauthenticated), 1)
	assert.Equal(t, "initial_check_error", h.transitionsTo(PhaseUnauthenticated)[0].Tags["trigger"])
}

func TestMachine_InitialCheckHangFailsClosed(t *testing.T) {
	backend := &mocks.FakeBackend{
		SessionFunc: func(ctx context.Context) (*domainauth.Session, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	h := newHarness(t, backend, Timing{InitTimeout: time.Hour})
	h.start(t)

	h.clock.Advance(59 * time.Minute)
	assert.Equal(t, PhaseInitializing, h.m.State().Phase)

	h.clock.Advance(time.Minute)
	st := h.waitPhase(t, PhaseUnauthenticated)
	assert.True(t, st.IsReady())
	require.Len(t, h.transitionsTo(PhaseUnauthenticated), 1)
	assert.Equal(t, "init_timeout", h.transitionsTo(PhaseUnauthenticated)[0].Tags["trigger"])
}

func TestMachine_TokenRefreshKeepsPhase(t *testing.T) {
	backend := &mocks.FakeBackend{
		SessionFunc: func(context.Context) (*domainauth.Session, error) {
			return session("s1", "u1"), nil
		},
	}
	h := newHarness(t, backend, Timing{SettleDelay: 50 * time.Millisecond})
	h.start(t)
	h.waitPhase(t, PhaseAuthenticated)
	h.clock.Advance(50 * time.Millisecond)
	before := h.waitPhase(t, PhaseStable)

	refreshed := session("s1", "u1")
	refreshed.AccessToken = "rotated"
	backend.Emit(domainauth.ChangeEvent{Kind: domainauth.EventTokenRefreshed, Session: refreshed, SessionID: "s1", UserID: "u1"})

	require.Eventually(t, func() bool {
		s := h.m.State().Session
		return s != nil && s.AccessToken == "rotated"
	}, waitFor, time.Millisecond)
	st := h.m.State()
	assert.Equal(t, PhaseStable, st.Phase)
	assert.Equal(t, before.Generation, st.Generation)

	// A refresh without a payload keeps the current session.
	backend.Emit(domainauth.ChangeEvent{Kind: domainauth.EventTokenRefreshed, SessionID: "s1", UserID: "u1"})
	require.Never(t, func() bool { return h.m.State().Session == nil }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestMachine_UserDeletedSignsOut(t *testing.T) {
	backend := &mocks.FakeBackend{
		SessionFunc: func(context.Context) (*domainauth.Session, error) {
			return session("s1", "u1"), nil
		},
	}
	h := newHarness(t, backend, Timing{})
	h.start(t)
	h.waitPhase(t, PhaseAuthenticated)

	backend.Emit(domainauth.ChangeEvent{Kind: domainauth.EventUserDeleted, UserID: "u1", Session: session("s1", "u1")})
	st := h.waitPhase(t, PhaseUnauthenticated)
	assert.Nil(t, st.Session)
}

func TestMachine_WatchDeliversLatest(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{})
	ch, cancel := h.m.Watch()
	defer cancel()

	h.start(t)
	h.waitPhase(t, PhaseUnauthenticated)

	st := <-ch
	assert.Equal(t, PhaseUnauthenticated, st.Phase)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestMachine_WaitStable(t *testing.T) {
	h := newHarness(t, &mocks.FakeBackend{}, Timing{})
	h.start(t)
	h.waitPhase(t, PhaseUnauthenticated)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := h.m.WaitStable(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, PhaseUnauthenticated, st.Phase)

	done := make(chan State, 1)
	go func() {
		st, _ := h.m.WaitStable(context.Background())
		done <- st
	}()
	h.clock.Advance(DefaultSettleDelay)

	select {
	case st := <-done:
		assert.Equal(t, PhaseStable, st.Phase)
	case <-time.After(waitFor):
		t.Fatal("WaitStable did not return")
	}
}

func TestMachine_CloseIsIdempotent(t *testing.T) {
	backend := &mocks.FakeBackend{
		SessionFunc: func(context.Context) (*domainauth.Session, error) {
			return session("s1", "u1"), nil
		},
	}
	h := newHarness(t, backend, Timing{})
	h.clock.leaky = true
	ch, _ := h.m.Watch()
	h.start(t)
	before := h.waitPhase(t, PhaseAuthenticated)

	require.NoError(t, h.m.Close())
	require.NoError(t, h.m.Close())

	require.Len(t, backend.Streams(), 1)
	assert.True(t, backend.Streams()[0].Closed())
	assert.Equal(t, 0, backend.Emit(signedOut()))

	// A settle timer that fires after teardown must not touch the state.
	h.clock.Advance(DefaultSettleDelay)
	assert.Equal(t, before, h.m.State())

	for range ch {
	}
	late, _ := h.m.Watch()
	_, ok := <-late
	assert.False(t, ok)

	assert.ErrorIs(t, h.m.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.m.SignIn(context.Background(), "a@example.com", "pw"), ErrClosed)
	assert.ErrorIs(t, h.m.SignOut(context.Background()), ErrClosed)
	_, err := h.m.SignUp(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.m.WaitStable(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMachine_SignIn(t *testing.T) {
	t.Run("success notifies and waits for the event", func(t *testing.T) {
		h := newHarness(t, &mocks.FakeBackend{}, Timing{})
		h.start(t)
		h.waitPhase(t, PhaseUnauthenticated)

		require.NoError(t, h.m.SignIn(context.Background(), "ann@example.com", "pw"))
		assert.Equal(t, "Welcome back!", h.notices.Last().Title)
		assert.Equal(t, notify.SeveritySuccess, h.notices.Last().Severity)
		assert.Equal(t, PhaseUnauthenticated, h.m.State().Phase)

		h.backend.Emit(signedIn(session("s1", "ann")))
		h.waitPhase(t, PhaseAuthenticated)

		ops := h.metrics.Named("auth.operation")
		require.NotEmpty(t, ops)
		assert.Equal(t, "sign_in", ops[len(ops)-1].Tags["operation"])
		assert.Equal(t, "success", ops[len(ops)-1].Tags["result"])
	})

	t.Run("failure notifies and leaves the phase alone", func(t *testing.T) {
		backend := &mocks.FakeBackend{
			SignInFunc: func(context.Context, domainauth.Credentials) (*domainauth.Session, error) {
				return nil, errors.New("Invalid login credentials")
			},
		}
		h := newHarness(t, backend, Timing{})
		h.start(t)
		before := h.waitPhase(t, PhaseUnauthenticated)

		err := h.m.SignIn(context.Background(), "ann@example.com", "bad")
		require.EqualError(t, err, "Invalid login credentials")

		n := h.notices.Last()
		assert.Equal(t, "Error signing in", n.Title)
		assert.Equal(t, "Invalid login credentials", n.Description)
		assert.Equal(t, notify.SeverityError, n.Severity)
		assert.Equal(t, before, h.m.State())

		ops := h.metrics.Named("auth.operation")
		require.NotEmpty(t, ops)
		assert.Equal(t, "error", ops[len(ops)-1].Tags["result"])
	})
}

func TestMachine_SignUp(t *testing.T) {
	t.Run("pending confirmation", func(t *testing.T) {
		h := newHarness(t, &mocks.FakeBackend{}, Timing{})
		h.start(t)
		before := h.waitPhase(t, PhaseUnauthenticated)

		res, err := h.m.SignUp(context.Background(), "ann@example.com", "password1")
		require.NoError(t, err)
		assert.True(t, res.PendingConfirmation)
		assert.Nil(t, res.Session)

		n := h.notices.Last()
		assert.Equal(t, "Account created", n.Title)
		assert.Equal(t, "Please check your email to confirm your account.", n.Description)
		assert.Equal(t, before, h.m.State())
	})

	t.Run("immediately active", func(t *testing.T) {
		backend := &mocks.FakeBackend{
			SignUpFunc: func(_ context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error) {
				return domainauth.SignUpResult{Session: session("s1", creds.Email)}, nil
			},
		}
		h := newHarness(t, backend, Timing{})
		h.start(t)
		h.waitPhase(t, PhaseUnauthenticated)

		res, err := h.m.SignUp(context.Background(), "ann@example.com", "password1")
		require.NoError(t, err)
		assert.False(t, res.PendingConfirmation)
		assert.Equal(t, "Account created", h.notices.Last().Title)
		assert.NotEqual(t, "Please check your email to confirm your account.", h.notices.Last().Description)
	})

	t.Run("failure", func(t *testing.T) {
		backend := &mocks.FakeBackend{
			SignUpFunc: func(context.Context, domainauth.Credentials) (domainauth.SignUpResult, error) {
				return domainauth.SignUpResult{}, errors.New("User already registered")
			},
		}
		h := newHarness(t, backend, Timing{})
		h.start(t)
		h.waitPhase(t, PhaseUnauthenticated)

		_, err := h.m.SignUp(context.Background(), "ann@example.com", "password1")
		require.Error(t, err)
		assert.Equal(t, "Error signing up", h.notices.Last().Title)
		assert.Equal(t, "User already registered", h.notices.Last().Description)
	})
}

func TestMachine_SignOut(t *testing.T) {
	signedInBackend := func() *mocks.FakeBackend {
		return &mocks.FakeBackend{
			SessionFunc: func(context.Context) (*domainauth.Session, error) {
				return session("s1", "u1"), nil
			},
		}
	}

	t.Run("success waits for the event", func(t *testing.T) {
		backend := signedInBackend()
		h := newHarness(t, backend, Timing{})
		h.start(t)
		h.waitPhase(t, PhaseAuthenticated)

		require.NoError(t, h.m.SignOut(context.Background()))
		assert.Equal(t, "Signed out", h.notices.Last().Title)
		assert.Equal(t, PhaseAuthenticated, h.m.State().Phase)

		backend.Emit(signedOut())
		h.waitPhase(t, PhaseUnauthenticated)
	})

	t.Run("failure forces local sign out", func(t *testing.T) {
		backend := signedInBackend()
		backend.SignOutFunc = func(context.Context) error { return errors.New("network down") }
		h := newHarness(t, backend, Timing{})
		h.start(t)
		h.waitPhase(t, PhaseAuthenticated)

		err := h.m.SignOut(context.Background())
		require.EqualError(t, err, "network down")
		assert.Equal(t, "Error signing out", h.notices.Last().Title)
		assert.Equal(t, notify.SeverityError, h.notices.Last().Severity)

		st := h.waitPhase(t, PhaseUnauthenticated)
		assert.Nil(t, st.Identity)
		require.NotEmpty(t, h.transitionsTo(PhaseUnauthenticated))
		assert.Equal(t, "sign_out_fallback", h.transitionsTo(PhaseUnauthenticated)[0].Tags["trigger"])
	})

	t.Run("timeout forces local sign out", func(t *testing.T) {
		backend := signedInBackend()
		backend.SignOutFunc = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		h := newHarness(t, backend, Timing{SignOutTimeout: 20 * time.Millisecond})
		h.start(t)
		h.waitPhase(t, PhaseAuthenticated)

		err := h.m.SignOut(context.Background())
		require.ErrorIs(t, err, context.DeadlineExceeded)
		h.waitPhase(t, PhaseUnauthenticated)
		assert.Contains(t, h.logs.String(), "sign out timed out")
	})
}
