package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service
// and internal/authstate.

import (
	"context"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated sign-in flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a federated sign-in flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the federated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.FederatedIdentity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SessionStore persists and retrieves issued sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every session of userID and returns the removed session IDs.
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	SessionID string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	Issue(sess domainauth.Session) (string, error)
	Verify(token string) (AccessClaims, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AuthEventStream delivers auth change events until closed.
type AuthEventStream interface {
	Events() <-chan domainauth.ChangeEvent
	Close() error
}

// AuthEventBus fans auth change events out to subscribers of a user.
type AuthEventBus interface {
	Publish(ctx context.Context, ev domainauth.ChangeEvent) error
	Subscribe(ctx context.Context, userID string) (AuthEventStream, error)
}

// AuthBackend is the contract the client-side auth state machine consumes.
// Session changes are announced on the stream returned by Subscribe; the
// mutation calls only report success or failure.
type AuthBackend interface {
	SignIn(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error)
	SignUp(ctx context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error)
	SignOut(ctx context.Context) error
	// CurrentSession returns the current session, or nil when signed out.
	CurrentSession(ctx context.Context) (*domainauth.Session, error)
	Subscribe(ctx context.Context) (AuthEventStream, error)
}
