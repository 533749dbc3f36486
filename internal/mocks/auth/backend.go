package auth

import (
	"context"
	"sync"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

// Call names recorded by FakeBackend.
const (
	CallSubscribe      = "subscribe"
	CallCurrentSession = "current_session"
	CallSignIn         = "sign_in"
	CallSignUp         = "sign_up"
	CallSignOut        = "sign_out"
)

// FakeBackend is a scriptable ports.AuthBackend. Unset funcs succeed with zero values.
type FakeBackend struct {
	SessionFunc   func(ctx context.Context) (*domainauth.Session, error)
	SignInFunc    func(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error)
	SignUpFunc    func(ctx context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error)
	SignOutFunc   func(ctx context.Context) error
	SubscribeErr  error
	StreamBuffer  int
	OnSubscribe   func()
	OnSessionCall func()

	mu      sync.Mutex
	calls   []string
	streams []*Stream
}

func (f *FakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// Calls returns the recorded call order.
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeBackend) SignIn(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error) {
	f.record(CallSignIn)
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, creds)
	}
	return &domainauth.Session{ID: "s-" + creds.Email, UserID: "u-" + creds.Email, Email: creds.Email}, nil
}

func (f *FakeBackend) SignUp(ctx context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error) {
	f.record(CallSignUp)
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, creds)
	}
	return domainauth.SignUpResult{PendingConfirmation: true}, nil
}

func (f *FakeBackend) SignOut(ctx context.Context) error {
	f.record(CallSignOut)
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	return nil
}

func (f *FakeBackend) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	f.record(CallCurrentSession)
	if f.OnSessionCall != nil {
		f.OnSessionCall()
	}
	if f.SessionFunc != nil {
		return f.SessionFunc(ctx)
	}
	return nil, nil
}

func (f *FakeBackend) Subscribe(_ context.Context) (ports.AuthEventStream, error) {
	f.record(CallSubscribe)
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	buf := f.StreamBuffer
	if buf <= 0 {
		buf = 32
	}
	s := NewStream(buf)
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	if f.OnSubscribe != nil {
		f.OnSubscribe()
	}
	return s, nil
}

// Emit delivers ev to every open stream and reports how many accepted it.
func (f *FakeBackend) Emit(ev domainauth.ChangeEvent) int {
	f.mu.Lock()
	streams := append([]*Stream(nil), f.streams...)
	f.mu.Unlock()
	n := 0
	for _, s := range streams {
		if s.Send(ev) {
			n++
		}
	}
	return n
}

// Streams returns the streams handed out so far.
func (f *FakeBackend) Streams() []*Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Stream(nil), f.streams...)
}
