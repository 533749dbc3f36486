package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/notekeeper/internal/core"
	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/data/cryptoutil"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/domain/model"
	apperrors "github.com/target/notekeeper/internal/errors"
	"github.com/target/notekeeper/internal/observability/metrics"
	"github.com/target/notekeeper/internal/observability/notify"
	"github.com/target/notekeeper/internal/observability/statsd"
	"github.com/target/notekeeper/internal/ports"
)

const refreshTokenBytes = 32

// AuthStores groups the persistence ports used by AuthService.
type AuthStores struct {
	Accounts core.AccountRepository
	Sessions ports.SessionStore
	Events   ports.AuthEventBus   // optional
	Cache    core.CacheRepository // optional; enables sign-in throttling
}

// AuthSecurity groups the credential ports used by AuthService.
type AuthSecurity struct {
	Tokens   ports.TokenIssuer
	Hasher   ports.PasswordHasher
	Provider ports.AuthProvider // optional; nil disables SSO
}

// AuthPolicy holds session lifetimes and sign-in rules.
type AuthPolicy struct {
	AccessTokenTTL      time.Duration
	SessionTTL          time.Duration
	RequireConfirmation bool
	MaxFailedAttempts   int
	LockoutWindow       time.Duration
}

// AuthObservers holds the optional logging, metrics and notification sinks.
type AuthObservers struct {
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Notifier notify.Sink
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Stores    AuthStores
	Security  AuthSecurity
	Policy    AuthPolicy
	Observers AuthObservers
}

// AuthService issues, rotates and revokes sessions for password and SSO sign-in.
type AuthService struct {
	accounts core.AccountRepository
	sessions ports.SessionStore
	events   ports.AuthEventBus
	throttle *core.SignInThrottle

	tokens   ports.TokenIssuer
	hasher   ports.PasswordHasher
	provider ports.AuthProvider

	policy   AuthPolicy
	logger   *slog.Logger
	metrics  statsd.Sink
	notifier notify.Sink
	now      func() time.Time
}

// NewAuthService constructs a new AuthService. It panics when a required port is missing.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Stores.Accounts == nil || opts.Stores.Sessions == nil {
		panic("service: AuthService requires account and session stores")
	}
	if opts.Security.Tokens == nil || opts.Security.Hasher == nil {
		panic("service: AuthService requires a token issuer and a password hasher")
	}

	policy := opts.Policy
	if policy.AccessTokenTTL <= 0 {
		policy.AccessTokenTTL = 15 * time.Minute
	}
	if policy.SessionTTL < policy.AccessTokenTTL {
		policy.SessionTTL = 7 * 24 * time.Hour
	}

	logger := opts.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		accounts: opts.Stores.Accounts,
		sessions: opts.Stores.Sessions,
		events:   opts.Stores.Events,
		throttle: core.NewSignInThrottle(core.SignInThrottleOptions{
			Cache:       opts.Stores.Cache,
			MaxFailures: policy.MaxFailedAttempts,
			Window:      policy.LockoutWindow,
		}),
		tokens:   opts.Security.Tokens,
		hasher:   opts.Security.Hasher,
		provider: opts.Security.Provider,
		policy:   policy,
		logger:   logger.With("component", "auth_service"),
		metrics:  opts.Observers.Metrics,
		notifier: opts.Observers.Notifier,
		now:      time.Now,
	}
}

// SSOEnabled reports whether a federated provider is configured.
func (s *AuthService) SSOEnabled() bool { return s.provider != nil }

// SignUp creates a password account. A session is issued unless the account
// needs confirmation first.
func (s *AuthService) SignUp(ctx context.Context, creds domainauth.Credentials) (res domainauth.SignUpResult, err error) {
	defer s.observe("signup", s.now(), &err)

	c := creds.Normalized()
	req := model.CreateAccountRequest{Email: c.Email, Password: c.Password}
	if verr := req.Validate(); verr != nil {
		return res, apperrors.Wrap(verr, apperrors.ErrCodeValidation, verr.Error())
	}

	hash, err := s.hasher.Hash(c.Password)
	if err != nil {
		return res, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.accounts.Create(ctx, core.CreateAccountParams{
		Email:        c.Email,
		PasswordHash: hash,
		Provider:     model.ProviderPassword,
		Confirmed:    !s.policy.RequireConfirmation,
	})
	if errors.Is(err, data.ErrEmailExists) {
		return res, domainauth.ErrEmailTaken
	}
	if err != nil {
		return res, fmt.Errorf("create account: %w", err)
	}

	if !acct.Confirmed {
		s.logger.InfoContext(ctx, "account pending confirmation", "user_id", acct.ID)
		notify.Send(ctx, s.notifier, s.logger, notify.Notice{
			Title:       "New account awaiting confirmation",
			Description: acct.Email,
			Metadata:    map[string]string{"user_id": acct.ID},
		})
		return domainauth.SignUpResult{PendingConfirmation: true}, nil
	}

	sess, err := s.issue(ctx, acct, time.Time{})
	if err != nil {
		return res, err
	}
	return domainauth.SignUpResult{Session: sess}, nil
}

// SignIn verifies a password and issues a session.
func (s *AuthService) SignIn(ctx context.Context, creds domainauth.Credentials) (sess *domainauth.Session, err error) {
	defer s.observe("signin", s.now(), &err)

	c := creds.Normalized()
	if c.Email == "" || c.Password == "" {
		return nil, domainauth.ErrInvalidCredentials
	}

	locked, err := s.throttle.Locked(ctx, c.Email)
	if err != nil {
		s.logger.WarnContext(ctx, "sign-in throttle unavailable", "error", err)
	}
	if locked {
		return nil, domainauth.ErrTooManyAttempts
	}

	acct, err := s.accounts.GetByEmail(ctx, c.Email)
	switch {
	case errors.Is(err, data.ErrAccountNotFound):
		return nil, s.failSignIn(ctx, c.Email)
	case err != nil:
		return nil, fmt.Errorf("get account: %w", err)
	}

	if acct.Provider != model.ProviderPassword || acct.PasswordHash == "" {
		return nil, s.failSignIn(ctx, c.Email)
	}
	if cmpErr := s.hasher.Compare(acct.PasswordHash, c.Password); cmpErr != nil {
		return nil, s.failSignIn(ctx, c.Email)
	}
	if !acct.Confirmed {
		return nil, domainauth.ErrEmailNotConfirmed
	}

	if resetErr := s.throttle.Reset(ctx, c.Email); resetErr != nil {
		s.logger.WarnContext(ctx, "reset sign-in throttle failed", "error", resetErr)
	}
	return s.issue(ctx, acct, time.Time{})
}

func (s *AuthService) failSignIn(ctx context.Context, email string) error {
	n, err := s.throttle.RecordFailure(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "record sign-in failure", "error", err)
		return domainauth.ErrInvalidCredentials
	}
	if s.policy.MaxFailedAttempts > 0 && n == int64(s.policy.MaxFailedAttempts) {
		s.logger.WarnContext(ctx, "sign-in locked out", "email", email, "failures", n)
		notify.Send(ctx, s.notifier, s.logger, notify.Notice{
			Title:       "Sign-in locked out",
			Description: fmt.Sprintf("%s reached %d failed attempts", email, n),
			Severity:    notify.SeverityWarning,
		})
	}
	return domainauth.ErrInvalidCredentials
}

// Refresh rotates the tokens of the session holding refreshToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (sess *domainauth.Session, err error) {
	defer s.observe("refresh", s.now(), &err)

	if refreshToken == "" {
		return nil, domainauth.ErrInvalidToken
	}
	cur, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil, domainauth.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := s.now()
	if !cur.Refreshable(now) {
		if delErr := s.sessions.Delete(ctx, cur.ID); delErr != nil {
			s.logger.WarnContext(ctx, "delete stale session", "session_id", cur.ID, "error", delErr)
		}
		return nil, domainauth.ErrInvalidToken
	}

	next := cur
	next.IssuedAt = now
	next.ExpiresAt = minTime(now.Add(s.policy.AccessTokenTTL), cur.RefreshExpiresAt)
	if err := s.sign(&next); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventTokenRefreshed, Session: &next})
	return &next, nil
}

// GetSession returns a live session. Sessions whose refresh window has passed
// are deleted and reported as missing.
func (s *AuthService) GetSession(ctx context.Context, id string) (*domainauth.Session, error) {
	if id == "" {
		return nil, domainauth.ErrSessionNotFound
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.RefreshExpiresAt.IsZero() && !s.now().Before(sess.RefreshExpiresAt) {
		if delErr := s.sessions.Delete(ctx, id); delErr != nil {
			return nil, errors.Join(domainauth.ErrSessionNotFound, fmt.Errorf("delete session: %w", delErr))
		}
		return nil, domainauth.ErrSessionNotFound
	}
	return &sess, nil
}

// Authenticate verifies a bearer token and confirms its session still exists.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (*domainauth.Session, error) {
	claims, err := s.tokens.Verify(bearer)
	if err != nil {
		return nil, err
	}
	sess, err := s.GetSession(ctx, claims.SessionID)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil, domainauth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, domainauth.ErrInvalidToken
	}
	return sess, nil
}

// SignOut deletes a session. Signing out an unknown session is not an error.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) (err error) {
	if sessionID == "" {
		return nil
	}
	defer s.observe("signout", s.now(), &err)

	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.publish(ctx, domainauth.ChangeEvent{
		Kind:      domainauth.EventSignedOut,
		SessionID: sess.ID,
		UserID:    sess.UserID,
	})
	return nil
}

// RevokeSessions deletes every session of userID and announces each sign-out.
func (s *AuthService) RevokeSessions(ctx context.Context, userID string) (int, error) {
	ids, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	for _, id := range ids {
		s.publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventSignedOut, SessionID: id, UserID: userID})
	}
	s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID, "count", len(ids))
	return len(ids), nil
}

// ConfirmAccount marks an account as confirmed so it can sign in.
func (s *AuthService) ConfirmAccount(ctx context.Context, userID string) error {
	ok, err := s.accounts.Confirm(ctx, userID)
	if err != nil {
		return fmt.Errorf("confirm account: %w", err)
	}
	if !ok {
		return data.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account and its notes, revoking its sessions.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	ok, err := s.accounts.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if !ok {
		return data.ErrAccountNotFound
	}

	if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "revoke sessions of deleted account", "user_id", userID, "error", err)
	}
	s.publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventUserDeleted, UserID: userID})
	notify.Send(ctx, s.notifier, s.logger, notify.Notice{
		Title:    "Account deleted",
		Severity: notify.SeverityWarning,
		Metadata: map[string]string{"user_id": userID},
	})
	return nil
}

// BeginLoginResult contains the result of beginning an SSO flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginSSO starts a federated sign-in flow.
func (s *AuthService) BeginSSO(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, apperrors.NotFound("single sign-on is not enabled")
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing an SSO flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteSSO exchanges the authorization code, links the federated identity
// to an account and issues a session.
func (s *AuthService) CompleteSSO(ctx context.Context, in CompleteLoginInput) (sess *domainauth.Session, err error) {
	if s.provider == nil {
		return nil, apperrors.NotFound("single sign-on is not enabled")
	}
	defer s.observe("sso", s.now(), &err)

	switch {
	case in.Code == "":
		return nil, errors.New("authorization code is required")
	case in.State == "":
		return nil, errors.New("state parameter is required")
	case in.Nonce == "":
		return nil, errors.New("nonce parameter is required")
	}

	ident, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	acct, err := s.accounts.UpsertFederated(ctx, model.UpsertFederatedAccountRequest{
		Email:   model.NormalizeEmail(ident.Email),
		Subject: ident.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("link federated account: %w", err)
	}
	return s.issue(ctx, acct, ident.ExpiresAt)
}

// issue creates, signs and stores a new session for acct. A non-zero notAfter
// caps the session lifetime.
func (s *AuthService) issue(ctx context.Context, acct *model.Account, notAfter time.Time) (*domainauth.Session, error) {
	now := s.now()
	refreshExp := now.Add(s.policy.SessionTTL)
	if !notAfter.IsZero() && notAfter.After(now) {
		refreshExp = minTime(refreshExp, notAfter)
	}

	sess := domainauth.Session{
		ID:               uuid.NewString(),
		UserID:           acct.ID,
		Email:            acct.Email,
		IssuedAt:         now,
		ExpiresAt:        minTime(now.Add(s.policy.AccessTokenTTL), refreshExp),
		RefreshExpiresAt: refreshExp,
	}
	if err := s.sign(&sess); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.InfoContext(ctx, "session issued", "user_id", sess.UserID, "session_id", sess.ID)
	s.publish(ctx, domainauth.ChangeEvent{Kind: domainauth.EventSignedIn, Session: &sess})
	return &sess, nil
}

// sign sets a fresh access token and refresh token on sess.
func (s *AuthService) sign(sess *domainauth.Session) error {
	access, err := s.tokens.Issue(*sess)
	if err != nil {
		return fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := cryptoutil.RandomToken(refreshTokenBytes)
	if err != nil {
		return fmt.Errorf("issue refresh token: %w", err)
	}
	sess.AccessToken = access
	sess.RefreshToken = refresh
	return nil
}

func (s *AuthService) publish(ctx context.Context, ev domainauth.ChangeEvent) {
	if s.events == nil {
		return
	}
	if ev.Session != nil {
		ev.SessionID = ev.Session.ID
		ev.UserID = ev.Session.UserID
	}
	ev.OccurredAt = s.now()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish auth event", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
	}
}

func (s *AuthService) observe(op string, start time.Time, errp *error) {
	result := metrics.ResultSuccess
	var err error
	if errp != nil && *errp != nil {
		err = *errp
		result = metrics.ResultError
	}
	metrics.EmitAuthOperation(s.metrics, metrics.AuthOperation{
		Operation: op,
		Result:    result,
		Duration:  s.now().Sub(start),
		Err:       err,
	})
}

func minTime(a, b time.Time) time.Time {
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
