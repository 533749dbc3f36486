package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/notekeeper/internal/authstate"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/guard"
)

const defaultSessionLookupTimeout = 2 * time.Second

// GuardOptions configures GuardPages.
type GuardOptions struct {
	Auth SessionResolver
	// LookupTimeout bounds the session lookup; past it the loading page is served.
	LookupTimeout time.Duration
	Routes        guard.Config
	Pages         *TemplateRenderer
	CookieDomain  string
	Logger        *slog.Logger
}

// GuardPages protects browser pages with the route guard. Each request's
// session lookup is turned into an auth state snapshot: a lookup that is still
// running when the timeout fires is not yet settled and gets the loading
// placeholder, while a failed lookup settles as signed out.
func GuardPages(opts GuardOptions) func(http.Handler) http.Handler {
	if opts.Auth == nil {
		panic("httpx: GuardPages requires a session resolver")
	}
	timeout := opts.LookupTimeout
	if timeout <= 0 {
		timeout = defaultSessionLookupTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "route_guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := lookupWithin(r, opts.Auth, timeout)
			if r.Context().Err() != nil {
				return
			}

			st := authstate.State{Phase: authstate.PhaseStable, Ready: true}
			switch {
			case res.timedOut:
				st = authstate.State{Phase: authstate.PhaseInitializing}
			case res.err != nil:
				logger.WarnContext(r.Context(), "session lookup failed; treating request as signed out",
					"path", r.URL.Path, "error", res.err)
			default:
				st.Session = res.session
				st.Identity = domainauth.IdentityFrom(res.session)
			}

			d := guard.Decide(st, r.URL.RequestURI(), opts.Routes)
			switch d.Action {
			case guard.ActionLoading:
				w.Header().Set("Retry-After", loadingRetryAfter)
				w.Header().Set("Cache-Control", "no-store")
				renderPage(w, opts.Pages, http.StatusServiceUnavailable, PageData{Title: "Loading", Page: PageLoading})
			case guard.ActionRedirect:
				if res.session == nil && res.cred == credCookie {
					clearCookie(w, r, opts.CookieDomain, cookieSession)
				}
				logger.DebugContext(r.Context(), "guard redirect", "path", r.URL.Path, "reason", d.Reason)
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), res.session)))
			}
		})
	}
}

type lookupResult struct {
	session  *domainauth.Session
	cred     credential
	err      error
	timedOut bool
}

// lookupWithin resolves the request's session, giving up after timeout even
// when the store ignores context cancellation.
func lookupWithin(r *http.Request, auth SessionResolver, timeout time.Duration) lookupResult {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		sess, cred, err := resolveSession(ctx, r, auth)
		done <- lookupResult{session: sess, cred: cred, err: err}
	}()

	select {
	case res := <-done:
		if errors.Is(res.err, context.DeadlineExceeded) && r.Context().Err() == nil {
			res.timedOut = true
		}
		return res
	case <-ctx.Done():
		return lookupResult{timedOut: r.Context().Err() == nil}
	}
}
