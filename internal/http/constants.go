package httpx

import "time"

// Cookie names shared by the browser auth handlers and the session middleware.
const (
	cookieSession           = "session_id"
	cookieOAuthState        = "oauth_state"
	cookieOAuthNonce        = "oauth_nonce"
	cookiePostLoginRedirect = "post_login_redirect"
)

// oauthCookieMaxAge bounds how long an SSO round trip may take.
const oauthCookieMaxAge = 600

// Browser routes.
const (
	PathLogin       = "/auth/login"
	PathLogout      = "/auth/logout"
	PathSSOLogin    = "/auth/sso/login"
	PathSSOCallback = "/auth/sso/callback"
	PathDashboard   = "/dashboard"
)

// Page identifiers passed to templates.
const (
	PageLogin     = "login"
	PageDashboard = "dashboard"
	PageNote      = "note"
	PageLoading   = "loading"
	PageError     = "error"
)

const (
	// sseHeartbeat is how often an idle event stream sends a comment line.
	sseHeartbeat = 25 * time.Second

	// loadingRetryAfter is the Retry-After hint (seconds) sent with the loading placeholder.
	loadingRetryAfter = "1"

	// maxJSONBody caps request bodies of the JSON API.
	maxJSONBody = 1 << 20
)
