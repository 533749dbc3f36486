package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

const (
	streamBuffer    = 32
	minWatchBackoff = time.Second
	maxWatchBackoff = 30 * time.Second
)

var _ ports.AuthBackend = (*AuthBackend)(nil)

// SessionPersister stores the client's current session between runs.
type SessionPersister interface {
	Load() (*domainauth.Session, error)
	Save(sess domainauth.Session) error
	Clear() error
}

// AuthBackendOptions groups dependencies for AuthBackend.
type AuthBackendOptions struct {
	Client *Client
	Store  SessionPersister
	Logger *slog.Logger
}

// AuthBackend implements ports.AuthBackend over the HTTP API. Changes made
// through it are announced locally; changes made elsewhere (other devices,
// admin revocation) arrive through the server's event stream.
type AuthBackend struct {
	client *Client
	store  SessionPersister
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	subs        map[*eventStream]struct{}
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	closed      bool
	refreshMu   sync.Mutex
}

// NewAuthBackend constructs an AuthBackend.
func NewAuthBackend(opts AuthBackendOptions) *AuthBackend {
	if opts.Client == nil || opts.Store == nil {
		panic("apiclient: AuthBackend requires a client and a session store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthBackend{
		client: opts.Client,
		store:  opts.Store,
		logger: logger.With("component", "auth_backend"),
		now:    time.Now,
		subs:   make(map[*eventStream]struct{}),
	}
}

// SignIn exchanges credentials for a session.
func (b *AuthBackend) SignIn(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error) {
	var sess domainauth.Session
	err := b.client.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signin", body: creds.Normalized()}, &sess)
	if err != nil {
		return nil, err
	}
	if err := b.adopt(sess, domainauth.EventSignedIn); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SignUp registers an account. A session is adopted only when the server issued one.
func (b *AuthBackend) SignUp(ctx context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error) {
	var res domainauth.SignUpResult
	err := b.client.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: creds.Normalized()}, &res)
	if err != nil {
		return domainauth.SignUpResult{}, err
	}
	if res.Session != nil {
		if err := b.adopt(*res.Session, domainauth.EventSignedIn); err != nil {
			return domainauth.SignUpResult{}, err
		}
	}
	return res, nil
}

// SignOut revokes the session on the server and forgets it locally. The local
// copy is dropped even when the server cannot be reached; that failure is
// still returned. SIGNED_OUT is emitted even when nothing was stored, so
// subscribers that still hold a session always learn it is gone.
func (b *AuthBackend) SignOut(ctx context.Context) error {
	sess, err := b.store.Load()
	if err != nil {
		b.logger.Warn("discarding unreadable session", "error", err)
		b.stopWatch()
		clearErr := b.store.Clear()
		b.emit(domainauth.ChangeEvent{Kind: domainauth.EventSignedOut})
		return clearErr
	}
	if sess == nil {
		b.stopWatch()
		b.emit(domainauth.ChangeEvent{Kind: domainauth.EventSignedOut})
		return nil
	}

	remoteErr := b.client.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signout", token: sess.AccessToken}, nil)
	if IsStatus(remoteErr, http.StatusUnauthorized) {
		remoteErr = nil
	}

	b.stopWatch()
	if err := b.store.Clear(); err != nil {
		return errors.Join(remoteErr, fmt.Errorf("clear session: %w", err))
	}
	b.emit(domainauth.ChangeEvent{Kind: domainauth.EventSignedOut, SessionID: sess.ID, UserID: sess.UserID})
	return remoteErr
}

// CurrentSession returns the stored session after confirming it with the
// server, refreshing it first when the access token has expired. It returns
// nil when there is no usable session.
func (b *AuthBackend) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	sess, err := b.session(ctx)
	if err != nil || sess == nil {
		return sess, err
	}

	var remote domainauth.Session
	err = b.client.do(ctx, request{method: http.MethodGet, path: "/auth/v1/session", token: sess.AccessToken}, &remote)
	if IsStatus(err, http.StatusUnauthorized) {
		b.forget(sess, domainauth.EventSignedOut)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AccessToken returns a valid bearer token, refreshing when needed. It
// returns domainauth.ErrSessionNotFound when signed out.
func (b *AuthBackend) AccessToken(ctx context.Context) (string, error) {
	sess, err := b.session(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", domainauth.ErrSessionNotFound
	}
	return sess.AccessToken, nil
}

// session loads the stored session and refreshes an expired access token.
func (b *AuthBackend) session(ctx context.Context) (*domainauth.Session, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	sess, err := b.store.Load()
	if err != nil {
		b.logger.Warn("discarding unreadable session", "error", err)
		if clearErr := b.store.Clear(); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, nil
	}
	if sess == nil {
		return nil, nil
	}

	now := b.now()
	if !sess.Expired(now) {
		return sess, nil
	}
	if !sess.Refreshable(now) {
		b.forget(sess, domainauth.EventSignedOut)
		return nil, nil
	}

	var next domainauth.Session
	err = b.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		body:   map[string]string{"refresh_token": sess.RefreshToken},
	}, &next)
	if IsStatus(err, http.StatusUnauthorized) {
		b.forget(sess, domainauth.EventSignedOut)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if err := b.adopt(next, domainauth.EventTokenRefreshed); err != nil {
		return nil, err
	}
	return &next, nil
}

// Subscribe returns a stream of auth changes. The server's event stream is
// followed while at least one subscriber is open and a session exists.
func (b *AuthBackend) Subscribe(_ context.Context) (ports.AuthEventStream, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("auth backend closed")
	}
	s := newEventStream(streamBuffer, b.unsubscribe)
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	b.ensureWatch()
	return s, nil
}

// Close stops the server stream and closes every subscriber.
func (b *AuthBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*eventStream, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	b.stopWatch()
	for _, s := range subs {
		_ = s.Close()
	}
	b.watchWG.Wait()
	return nil
}

func (b *AuthBackend) unsubscribe(s *eventStream) {
	b.mu.Lock()
	delete(b.subs, s)
	idle := len(b.subs) == 0
	b.mu.Unlock()
	if idle {
		b.stopWatch()
	}
}

func (b *AuthBackend) adopt(sess domainauth.Session, kind domainauth.EventKind) error {
	if err := b.store.Save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	b.emit(domainauth.ChangeEvent{
		Kind:       kind,
		Session:    &sess,
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		OccurredAt: b.now(),
	})
	if kind == domainauth.EventSignedIn {
		b.stopWatch()
	}
	b.ensureWatch()
	return nil
}

func (b *AuthBackend) forget(sess *domainauth.Session, kind domainauth.EventKind) {
	b.stopWatch()
	if err := b.store.Clear(); err != nil {
		b.logger.Warn("clear session failed", "error", err)
	}
	b.emit(domainauth.ChangeEvent{Kind: kind, SessionID: sess.ID, UserID: sess.UserID, OccurredAt: b.now()})
}

func (b *AuthBackend) emit(ev domainauth.ChangeEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now()
	}
	b.mu.Lock()
	subs := make([]*eventStream, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.offer(ev) {
			b.logger.Warn("auth event dropped", "kind", ev.Kind)
		}
	}
}

// ensureWatch starts following the server stream when there are subscribers,
// a stored session, and no watch running yet.
func (b *AuthBackend) ensureWatch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.watchCancel != nil || len(b.subs) == 0 {
		return
	}
	sess, err := b.store.Load()
	if err != nil || sess == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.watchCancel = cancel
	b.watchWG.Add(1)
	go func() {
		defer b.watchWG.Done()
		b.watch(ctx, sess.ID)
	}()
}

func (b *AuthBackend) stopWatch() {
	b.mu.Lock()
	cancel := b.watchCancel
	b.watchCancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// watch follows the server stream for sessionID, reconnecting with backoff
// until cancelled or the session is gone.
func (b *AuthBackend) watch(ctx context.Context, sessionID string) {
	backoff := minWatchBackoff
	for ctx.Err() == nil {
		token, err := b.AccessToken(ctx)
		if err != nil {
			return
		}
		started := b.now()
		err = b.client.StreamEvents(ctx, token, func(ev domainauth.ChangeEvent) {
			b.applyRemote(sessionID, ev)
		})
		if ctx.Err() != nil {
			return
		}
		if IsStatus(err, http.StatusUnauthorized) {
			return
		}
		if err != nil {
			b.logger.Debug("auth event stream interrupted", "error", err)
		}
		if b.now().Sub(started) > maxWatchBackoff {
			backoff = minWatchBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxWatchBackoff)
	}
}

// applyRemote mirrors a server-side sign-out or account deletion. Sign-in and
// refresh events for this session originate here and were already emitted.
func (b *AuthBackend) applyRemote(sessionID string, ev domainauth.ChangeEvent) {
	if !ev.Kind.ClearsSession() {
		return
	}
	if ev.Kind != domainauth.EventUserDeleted && ev.SessionID != sessionID {
		return
	}
	if err := b.store.Clear(); err != nil {
		b.logger.Warn("clear session failed", "error", err)
	}
	ev.Session = nil
	b.emit(ev)
}
