package authstate

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/observability/metrics"
	"github.com/target/notekeeper/internal/observability/notify"
)

// Notices surfaced by the mutation operations.
var (
	noticeSignedIn = notify.Notice{
		Title:       "Welcome back!",
		Description: "You've been successfully signed in.",
		Severity:    notify.SeveritySuccess,
	}
	noticeSignUpPending = notify.Notice{
		Title:       "Account created",
		Description: "Please check your email to confirm your account.",
		Severity:    notify.SeveritySuccess,
	}
	noticeSignUpActive = notify.Notice{
		Title:       "Account created",
		Description: "You're signed in and ready to go.",
		Severity:    notify.SeveritySuccess,
	}
	noticeSignedOut = notify.Notice{
		Title:       "Signed out",
		Description: "You've been successfully signed out.",
		Severity:    notify.SeveritySuccess,
	}
)

func failureNotice(title string, err error) notify.Notice {
	desc := "An unexpected error occurred."
	if err != nil && err.Error() != "" {
		desc = err.Error()
	}
	return notify.Notice{Title: title, Description: desc, Severity: notify.SeverityError}
}

// SignIn asks the backend to sign in. The phase is not touched here: the
// backend's change event drives it. Failures are reported to the notifier and
// returned.
func (m *Machine) SignIn(ctx context.Context, email, password string) error {
	if !m.active.Load() {
		return ErrClosed
	}
	start := m.timing.Clock.Now()
	_, err := m.backend.SignIn(ctx, domainauth.Credentials{Email: email, Password: password})
	m.record("sign_in", start, err)
	if err != nil {
		m.notice(ctx, failureNotice("Error signing in", err))
		return err
	}
	m.notice(ctx, noticeSignedIn)
	return nil
}

// SignUp asks the backend to create an account. Success does not imply a
// session: the result may be pending confirmation.
func (m *Machine) SignUp(ctx context.Context, email, password string) (domainauth.SignUpResult, error) {
	if !m.active.Load() {
		return domainauth.SignUpResult{}, ErrClosed
	}
	start := m.timing.Clock.Now()
	res, err := m.backend.SignUp(ctx, domainauth.Credentials{Email: email, Password: password})
	m.record("sign_up", start, err)
	if err != nil {
		m.notice(ctx, failureNotice("Error signing up", err))
		return domainauth.SignUpResult{}, err
	}
	if res.PendingConfirmation || res.Session == nil {
		m.notice(ctx, noticeSignUpPending)
	} else {
		m.notice(ctx, noticeSignUpActive)
	}
	return res, nil
}

// SignOut asks the backend to sign out. On success the phase flips when the
// backend's SIGNED_OUT event arrives. If the call fails or does not finish
// within SignOutTimeout, the machine forces the signed-out phase locally so a
// broken backend cannot keep a session alive on this client.
func (m *Machine) SignOut(ctx context.Context) error {
	if !m.active.Load() {
		return ErrClosed
	}
	start := m.timing.Clock.Now()

	callCtx, cancel := context.WithTimeout(ctx, m.timing.SignOutTimeout)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- m.backend.SignOut(callCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	m.record("sign_out", start, err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.WarnContext(ctx, "sign out timed out; forcing local sign out", "timeout", m.timing.SignOutTimeout)
		} else {
			m.logger.WarnContext(ctx, "sign out failed; forcing local sign out", "error", err)
		}
		m.notice(ctx, failureNotice("Error signing out", err))
		m.send(input{kind: inputForceSignOut})
		return err
	}
	m.notice(ctx, noticeSignedOut)
	return nil
}

func (m *Machine) notice(ctx context.Context, n notify.Notice) {
	notify.Send(ctx, m.notifier, m.logger, n)
}

func (m *Machine) record(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthOperation(m.metrics, metrics.AuthOperation{
		Operation: op,
		Result:    result,
		Duration:  m.timing.Clock.Now().Sub(start),
		Err:       err,
	})
}
