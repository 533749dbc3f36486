package httpx

import (
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func setCookie(w http.ResponseWriter, r *http.Request, domain, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clearCookie expires a cookie, mirroring the attributes it was set with so
// every browser drops it.
func clearCookie(w http.ResponseWriter, r *http.Request, domain, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie writes the browser session cookie. Browser sessions are
// looked up by ID, so the cookie lives as long as the session itself.
func setSessionCookie(w http.ResponseWriter, r *http.Request, domain string, s domainauth.Session) {
	maxAge := int(time.Until(s.RefreshExpiresAt).Seconds())
	if s.RefreshExpiresAt.IsZero() {
		maxAge = 0
	}
	if maxAge < 0 {
		maxAge = -1
	}
	setCookie(w, r, domain, cookieSession, s.ID, maxAge)
}
