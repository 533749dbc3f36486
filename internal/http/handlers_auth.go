package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/guard"
	"github.com/target/notekeeper/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	SessionResolver
	SignUp(ctx context.Context, creds domainauth.Credentials) (domainauth.SignUpResult, error)
	SignIn(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	SSOEnabled() bool
	BeginSSO(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteSSO(ctx context.Context, in service.CompleteLoginInput) (*domainauth.Session, error)
}

// AuthHandlers provides the browser sign-in, sign-out and SSO handlers.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Pages        *TemplateRenderer
	Routes       guard.Config
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) redirectParam() string {
	if h.Routes.RedirectParam != "" {
		return h.Routes.RedirectParam
	}
	return guard.DefaultRedirectParam
}

// LoginPage renders the sign-in form.
// GET /auth/login?redirect_uri=<optional_redirect>. Signed-in users never get
// here: the route guard bounces them to their destination first.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, h.Pages, http.StatusOK, PageData{
		Title:       "Sign in",
		Page:        PageLogin,
		RedirectURI: r.URL.Query().Get(h.redirectParam()),
		SSOEnabled:  h.Svc.SSOEnabled(),
	})
}

// LoginSubmit handles the sign-in form.
// POST /auth/login.
func (h *AuthHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		renderPage(w, h.Pages, http.StatusBadRequest, PageData{Title: "Sign in", Page: PageLogin, Error: "Invalid form submission."})
		return
	}
	redirectURI := r.PostForm.Get(h.redirectParam())
	creds := domainauth.Credentials{Email: r.PostForm.Get("email"), Password: r.PostForm.Get("password")}

	sess, err := h.Svc.SignIn(r.Context(), creds)
	if err != nil {
		status, _ := DetermineErrorStatus(err)
		msg := "Sign-in failed. Please try again."
		if code := domainauth.ErrorCode(err); code != "" {
			msg = domainauth.ErrorFromCode(code).Error()
		}
		if status >= http.StatusInternalServerError {
			h.logger().ErrorContext(r.Context(), "sign-in failed", "error", err)
		}
		renderPage(w, h.Pages, status, PageData{
			Title:       "Sign in",
			Page:        PageLogin,
			Error:       msg,
			Email:       creds.Normalized().Email,
			RedirectURI: redirectURI,
			SSOEnabled:  h.Svc.SSOEnabled(),
		})
		return
	}

	setSessionCookie(w, r, h.CookieDomain, *sess)
	http.Redirect(w, r, guard.SafeRedirectPath(redirectURI, h.Routes), http.StatusSeeOther)
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieSession); err == nil && c.Value != "" {
		if err := h.Svc.SignOut(r.Context(), c.Value); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	clearCookie(w, r, h.CookieDomain, cookieSession)

	target := guard.DefaultEntryPath
	if h.Routes.EntryPath != "" {
		target = h.Routes.EntryPath
	}

	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SSOLogin starts the single sign-on flow.
// GET /auth/sso/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		h.renderError(w, http.StatusNotFound, "Single sign-on is not enabled.")
		return
	}
	redirectURI := guard.SafeRedirectPath(r.URL.Query().Get(h.redirectParam()), h.Routes)

	result, err := h.Svc.BeginSSO(r.Context(), callbackURL(r))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin sso failed", "error", err)
		h.renderError(w, http.StatusBadGateway, "Could not start single sign-on.")
		return
	}

	setCookie(w, r, h.CookieDomain, cookieOAuthState, result.State, oauthCookieMaxAge)
	setCookie(w, r, h.CookieDomain, cookieOAuthNonce, result.Nonce, oauthCookieMaxAge)
	setCookie(w, r, h.CookieDomain, cookiePostLoginRedirect, redirectURI, oauthCookieMaxAge)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes the single sign-on flow.
// GET /auth/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.SSOEnabled() {
		h.renderError(w, http.StatusNotFound, "Single sign-on is not enabled.")
		return
	}
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.renderError(w, http.StatusBadRequest, "The sign-in response was incomplete.")
		return
	}
	stateCookie, err := r.Cookie(cookieOAuthState)
	if err != nil || stateCookie.Value != state {
		h.renderError(w, http.StatusBadRequest, "The sign-in attempt expired. Please try again.")
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil || nonceCookie.Value == "" {
		h.renderError(w, http.StatusBadRequest, "The sign-in attempt expired. Please try again.")
		return
	}

	sess, err := h.Svc.CompleteSSO(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "complete sso failed", "error", err)
		h.renderError(w, http.StatusUnauthorized, "Single sign-on failed.")
		return
	}

	setSessionCookie(w, r, h.CookieDomain, *sess)
	clearCookie(w, r, h.CookieDomain, cookieOAuthState)
	clearCookie(w, r, h.CookieDomain, cookieOAuthNonce)
	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// postLoginRedirect returns the stored post-login destination and clears the cookie.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(cookiePostLoginRedirect)
	if err != nil {
		return guard.SafeRedirectPath("", h.Routes)
	}
	clearCookie(w, r, h.CookieDomain, cookiePostLoginRedirect)
	return guard.SafeRedirectPath(c.Value, h.Routes)
}

func (h *AuthHandlers) renderError(w http.ResponseWriter, status int, msg string) {
	renderPage(w, h.Pages, status, PageData{Title: http.StatusText(status), Page: PageError, Error: msg})
}

// callbackURL builds the absolute SSO callback URL for the current host.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if isSecureRequest(r) {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: PathSSOCallback}
	return u.String()
}
