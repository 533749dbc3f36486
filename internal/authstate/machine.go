package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/observability/metrics"
	"github.com/target/notekeeper/internal/observability/notify"
	"github.com/target/notekeeper/internal/observability/statsd"
	"github.com/target/notekeeper/internal/ports"
)

const (
	DefaultSettleDelay    = 50 * time.Millisecond
	DefaultInitTimeout    = 5 * time.Second
	DefaultSignOutTimeout = 5 * time.Second
)

var (
	// ErrClosed is returned by operations on a machine that has been closed.
	ErrClosed = errors.New("auth state machine closed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("auth state machine already started")
)

// Timing groups the machine's delays.
type Timing struct {
	SettleDelay    time.Duration
	InitTimeout    time.Duration
	SignOutTimeout time.Duration
	Clock          Clock
}

// Observers groups the machine's side channels. All fields are optional.
type Observers struct {
	Notifier notify.Sink
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Options groups dependencies for Machine.
type Options struct {
	Backend   ports.AuthBackend // Required
	Timing    Timing
	Observers Observers
}

type inputKind int

const (
	inputEvent inputKind = iota + 1
	inputInitial
	inputInitTimeout
	inputSettle
	inputForceSignOut
)

type input struct {
	kind    inputKind
	event   domainauth.ChangeEvent
	session *domainauth.Session
	err     error
	gen     uint64
}

// Machine is the single writer of the client auth state. All mutations happen
// on one goroutine fed by the change-event stream, the initial session check,
// timers and the sign-out fallback; readers get snapshots.
type Machine struct {
	backend  ports.AuthBackend
	timing   Timing
	notifier notify.Sink
	logger   *slog.Logger
	metrics  statsd.Sink

	inputs chan input
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	active    atomic.Bool
	closeOnce sync.Once

	// owned by the run goroutine
	gen          uint64
	eventApplied bool

	timerMu   sync.Mutex
	settle    Timer
	initTimer Timer
	stream    ports.AuthEventStream

	mu       sync.RWMutex
	state    State
	watchers map[int]chan State
	nextID   int
	closed   bool
}

// New constructs a Machine in the INITIALIZING phase. Call Start to begin.
func New(opts Options) *Machine {
	if opts.Backend == nil {
		panic("authstate: Backend is required") //nolint:forbidigo // programmer error at wiring time
	}
	t := opts.Timing
	if t.SettleDelay <= 0 {
		t.SettleDelay = DefaultSettleDelay
	}
	if t.InitTimeout <= 0 {
		t.InitTimeout = DefaultInitTimeout
	}
	if t.SignOutTimeout <= 0 {
		t.SignOutTimeout = DefaultSignOutTimeout
	}
	if t.Clock == nil {
		t.Clock = RealClock()
	}
	logger := opts.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		backend:  opts.Backend,
		timing:   t,
		notifier: opts.Observers.Notifier,
		logger:   logger.With("component", "authstate"),
		metrics:  opts.Observers.Metrics,
		inputs:   make(chan input),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Phase: PhaseInitializing},
		watchers: make(map[int]chan State),
	}
	m.active.Store(true)
	return m
}

// Start subscribes to the change-event stream and then issues the initial
// session check. The subscription is established before the check is sent so
// that no event can slip between the two.
func (m *Machine) Start(ctx context.Context) error {
	if !m.active.Load() {
		return ErrClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	stream, err := m.backend.Subscribe(ctx)
	if err != nil {
		// Without a stream the initial check alone decides the phase.
		m.logger.WarnContext(ctx, "auth change subscription failed", "error", err)
		stream = nil
	}

	m.timerMu.Lock()
	m.stream = stream
	m.initTimer = m.timing.Clock.AfterFunc(m.timing.InitTimeout, func() {
		m.send(input{kind: inputInitTimeout})
	})
	m.timerMu.Unlock()

	go m.run()
	if stream != nil {
		go m.pump(stream)
	}
	go m.checkInitial()
	return nil
}

func (m *Machine) checkInitial() {
	ctx, cancel := context.WithTimeout(m.ctx, m.timing.InitTimeout)
	defer cancel()
	sess, err := m.backend.CurrentSession(ctx)
	m.send(input{kind: inputInitial, session: sess, err: err})
}

func (m *Machine) pump(stream ports.AuthEventStream) {
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			m.send(input{kind: inputEvent, event: ev})
		}
	}
}

// send hands an input to the run loop, dropping it once teardown has begun.
func (m *Machine) send(in input) {
	select {
	case m.inputs <- in:
	case <-m.done:
	}
}

func (m *Machine) run() {
	for {
		select {
		case <-m.done:
			return
		case in := <-m.inputs:
			if !m.active.Load() {
				continue
			}
			m.handle(in)
		}
	}
}

func (m *Machine) handle(in input) {
	switch in.kind {
	case inputEvent:
		m.handleEvent(in.event)
	case inputInitial:
		m.handleInitial(in.session, in.err)
	case inputInitTimeout:
		if m.current().Phase == PhaseInitializing {
			m.logger.Warn("initial session check timed out; treating as signed out",
				"timeout", m.timing.InitTimeout)
			m.apply(nil, "init_timeout")
		}
	case inputSettle:
		m.handleSettle(in.gen)
	case inputForceSignOut:
		m.apply(nil, "sign_out_fallback")
	}
}

func (m *Machine) handleEvent(ev domainauth.ChangeEvent) {
	sess := ev.Session
	switch {
	case ev.Kind.ClearsSession():
		sess = nil
	case ev.Kind == domainauth.EventTokenRefreshed && sess == nil:
		sess = m.current().Session
	}
	m.eventApplied = true
	m.logger.Debug("auth change event", "kind", ev.Kind, "signed_in", sess != nil)
	m.apply(sess, string(ev.Kind))
}

func (m *Machine) handleInitial(sess *domainauth.Session, err error) {
	if m.eventApplied {
		// A change event already carried a newer answer.
		m.logger.Debug("initial session check superseded by change event")
		return
	}
	if err != nil {
		m.logger.Warn("initial session check failed; treating as signed out", "error", err)
		m.apply(nil, "initial_check_error")
		return
	}
	m.apply(sess, "initial_check")
}

func (m *Machine) handleSettle(gen uint64) {
	if gen != m.gen {
		return
	}
	cur := m.current().Phase
	if cur != PhaseAuthenticated && cur != PhaseUnauthenticated {
		return
	}
	m.transition(PhaseStable, "settle")
}

// apply records sess as the current session and moves to the matching phase.
// Replacing a session without changing its presence is not a phase transition.
func (m *Machine) apply(sess *domainauth.Session, trigger string) {
	prev := m.current()
	target := PhaseUnauthenticated
	if sess != nil {
		target = PhaseAuthenticated
	}

	m.mu.Lock()
	m.state.Session = sess
	m.state.Identity = domainauth.IdentityFrom(sess)
	m.state.Ready = true
	m.mu.Unlock()

	m.timerMu.Lock()
	if m.initTimer != nil {
		m.initTimer.Stop()
		m.initTimer = nil
	}
	m.timerMu.Unlock()

	samePresence := prev.Phase != PhaseInitializing && prev.SignedIn() == (sess != nil)
	if samePresence {
		m.publish()
		return
	}
	m.transition(target, trigger)
}

// transition moves to phase to, cancelling any pending settle timer and
// scheduling a new one keyed by the new generation.
func (m *Machine) transition(to Phase, trigger string) {
	from := m.current().Phase
	if !CanTransition(from, to) {
		m.logger.Error("rejected auth phase transition", "from", from, "to", to, "trigger", trigger)
		return
	}

	m.gen++
	gen := m.gen
	m.timerMu.Lock()
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	m.timerMu.Unlock()

	m.mu.Lock()
	m.state.Phase = to
	m.state.Generation = gen
	m.mu.Unlock()

	m.logger.Info("auth phase transition", "from", from, "to", to, "trigger", trigger, "generation", gen)
	metrics.EmitPhaseTransition(m.metrics, metrics.PhaseTransition{From: from.String(), To: to.String(), Trigger: trigger})

	if to != PhaseStable {
		m.timerMu.Lock()
		m.settle = m.timing.Clock.AfterFunc(m.timing.SettleDelay, func() {
			m.send(input{kind: inputSettle, gen: gen})
		})
		m.timerMu.Unlock()
	}
	m.publish()
}

func (m *Machine) current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// publish pushes the latest snapshot to every watcher, replacing any value the
// watcher has not consumed yet.
func (m *Machine) publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- m.state
	}
}

// State returns the current snapshot.
func (m *Machine) State() State { return m.current() }

// Watch returns a channel that receives the latest snapshot after every change,
// starting with the current one. Slow readers only see the newest value.
// The channel is closed by the returned cancel func or by Close.
func (m *Machine) Watch() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan State, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	ch <- m.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if w, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(w)
			}
		})
	}
}

// WaitStable blocks until the phase is STABLE, ctx is done, or the machine closes.
func (m *Machine) WaitStable(ctx context.Context) (State, error) {
	ch, cancel := m.Watch()
	defer cancel()
	last := m.current()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return last, ErrClosed
			}
			last = st
			if st.Phase == PhaseStable {
				return st, nil
			}
		case <-ctx.Done():
			return last, ctx.Err()
		case <-m.done:
			return last, ErrClosed
		}
	}
}

// Close tears the machine down. It is idempotent; inputs that arrive after
// Close has begun are dropped without touching the state.
func (m *Machine) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.active.Store(false)
		close(m.done)
		m.cancel()

		m.mu.Lock()
		m.closed = true
		for id, ch := range m.watchers {
			close(ch)
			delete(m.watchers, id)
		}
		m.mu.Unlock()

		m.timerMu.Lock()
		for _, t := range []Timer{m.settle, m.initTimer} {
			if t != nil {
				t.Stop()
			}
		}
		m.settle, m.initTimer = nil, nil
		stream := m.stream
		m.timerMu.Unlock()

		if stream != nil {
			err = stream.Close()
		}
		m.logger.Debug("auth state machine closed")
	})
	return err
}
