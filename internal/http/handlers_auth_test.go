package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAuthHandlers_LoginSubmit(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		location string
	}{
		{name: "returns to the carried location", redirect: "/dashboard/notes/5", location: "/dashboard/notes/5"},
		{name: "defaults to the landing page", location: "/dashboard"},
		{name: "refuses off-site targets", redirect: "https://evil.example.com/", location: "/dashboard"},
		{name: "refuses protocol-relative targets", redirect: "//evil.example.com", location: "/dashboard"},
		{name: "never lands back on the entry point", redirect: "/auth/login", location: "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, newFakeAuth(), newFakeNotes())

			rec := serve(router, formRequest("/auth/login", url.Values{
				"email":        {"u1@example.com"},
				"password":     {testPassword},
				"redirect_uri": {tt.redirect},
			}))

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			c := findCookie(rec, cookieSession)
			require.NotNil(t, c)
			assert.Equal(t, "s-signin", c.Value)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		})
	}
}

func TestAuthHandlers_LoginSubmit_SecureBehindTLSProxy(t *testing.T) {
	router := newTestRouter(t, newFakeAuth(), newFakeNotes())
	req := formRequest("/auth/login", url.Values{"email": {"u1@example.com"}, "password": {testPassword}})
	req.Header.Set("X-Forwarded-Proto", "https")

	rec := serve(router, req)

	c := findCookie(rec, cookieSession)
	require.NotNil(t, c)
	assert.True(t, c.Secure)
}

func TestAuthHandlers_LoginSubmit_Failure(t *testing.T) {
	router := newTestRouter(t, newFakeAuth(), newFakeNotes())

	rec := serve(router, formRequest("/auth/login", url.Values{
		"email":        {"U1@Example.com "},
		"password":     {"wrong"},
		"redirect_uri": {"/dashboard/notes/5"},
	}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, findCookie(rec, cookieSession))
	body := rec.Body.String()
	assert.Contains(t, body, "invalid email or password")
	assert.Contains(t, body, `value="u1@example.com"`)
	assert.Contains(t, body, `value="/dashboard/notes/5"`)
}

func TestAuthHandlers_Logout(t *testing.T) {
	t.Run("browser", func(t *testing.T) {
		auth := newFakeAuth()
		auth.add("s1", "u1")
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), "s1"))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
		assert.Equal(t, []string{"s1"}, auth.signedOut)
		c := findCookie(rec, cookieSession)
		require.NotNil(t, c)
		assert.Negative(t, c.MaxAge)
	})

	t.Run("ajax", func(t *testing.T) {
		router := newTestRouter(t, newFakeAuth(), newFakeNotes())
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")

		rec := serve(router, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"success","redirect_to":"/auth/login"}`, rec.Body.String())
	})
}

func TestAuthHandlers_SSO(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		router := newTestRouter(t, newFakeAuth(), newFakeNotes())

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("begin sets the flow cookies", func(t *testing.T) {
		auth := newFakeAuth()
		auth.sso = true
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/auth/sso/login?redirect_uri=%2Fdashboard%2Fnotes%2F5", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://idp.example.com/authorize?state=st", rec.Header().Get("Location"))
		assert.Equal(t, "st", findCookie(rec, cookieOAuthState).Value)
		assert.Equal(t, "nn", findCookie(rec, cookieOAuthNonce).Value)
		assert.Equal(t, "/dashboard/notes/5", findCookie(rec, cookiePostLoginRedirect).Value)
	})

	t.Run("callback completes the flow", func(t *testing.T) {
		auth := newFakeAuth()
		auth.sso = true
		router := newTestRouter(t, auth, newFakeNotes())

		req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?code=abc&state=st", nil)
		req.AddCookie(&http.Cookie{Name: cookieOAuthState, Value: "st"})
		req.AddCookie(&http.Cookie{Name: cookieOAuthNonce, Value: "nn"})
		req.AddCookie(&http.Cookie{Name: cookiePostLoginRedirect, Value: "/dashboard/notes/5"})
		rec := serve(router, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/dashboard/notes/5", rec.Header().Get("Location"))
		assert.Equal(t, "s-sso", findCookie(rec, cookieSession).Value)
		require.NotNil(t, auth.completed)
		assert.Equal(t, "abc", auth.completed.Code)
		assert.Equal(t, "nn", auth.completed.Nonce)
	})

	t.Run("callback rejects a mismatched state", func(t *testing.T) {
		auth := newFakeAuth()
		auth.sso = true
		router := newTestRouter(t, auth, newFakeNotes())

		req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?code=abc&state=other", nil)
		req.AddCookie(&http.Cookie{Name: cookieOAuthState, Value: "st"})
		req.AddCookie(&http.Cookie{Name: cookieOAuthNonce, Value: "nn"})
		rec := serve(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, auth.completed)
		assert.Nil(t, findCookie(rec, cookieSession))
	})
}
