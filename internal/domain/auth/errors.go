package auth

import "errors"

// Sentinel errors shared by the auth service, its adapters and the HTTP layer.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrTooManyAttempts    = errors.New("too many failed sign-in attempts")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Wire codes for the sentinels above, shared by the HTTP API and its client.
var sentinelCodes = []struct {
	err  error
	code string
}{
	{ErrSessionNotFound, "session_not_found"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrEmailTaken, "email_taken"},
	{ErrEmailNotConfirmed, "email_not_confirmed"},
	{ErrTooManyAttempts, "too_many_attempts"},
	{ErrInvalidToken, "invalid_token"},
}

// ErrorCode returns the wire code of the first sentinel in err's chain, or "".
func ErrorCode(err error) string {
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return ""
}

// ErrorFromCode maps a wire code back to its sentinel, or nil when unknown.
func ErrorFromCode(code string) error {
	for _, sc := range sentinelCodes {
		if sc.code == code {
			return sc.err
		}
	}
	return nil
}
