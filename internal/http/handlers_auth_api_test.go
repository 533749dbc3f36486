package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthAPI_SignUp(t *testing.T) {
	t.Run("confirmed accounts get a session", func(t *testing.T) {
		auth := newFakeAuth()
		sess := auth.add("s-new", "u1")
		auth.signUp = domainauth.SignUpResult{Session: &sess}
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signup", `{"email":"a@example.com","password":"hunter22"}`))

		require.Equal(t, http.StatusCreated, rec.Code)
		var got domainauth.SignUpResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.NotNil(t, got.Session)
		assert.Equal(t, "s-new", got.Session.ID)
		assert.False(t, got.PendingConfirmation)
	})

	t.Run("pending confirmation is accepted without a session", func(t *testing.T) {
		auth := newFakeAuth()
		auth.signUp = domainauth.SignUpResult{PendingConfirmation: true}
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signup", `{"email":"a@example.com","password":"hunter22"}`))

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"pending_confirmation":true}`, rec.Body.String())
	})

	t.Run("taken emails conflict", func(t *testing.T) {
		auth := newFakeAuth()
		auth.signUpErr = domainauth.ErrEmailTaken
		router := newTestRouter(t, auth, newFakeNotes())

		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signup", `{"email":"a@example.com","password":"hunter22"}`))

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "email_taken", decodeEnvelope(t, rec).Error)
	})
}

func TestAuthAPI_SignIn(t *testing.T) {
	router := newTestRouter(t, newFakeAuth(), newFakeNotes())

	t.Run("valid credentials", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signin", `{"email":"u1@example.com","password":"hunter22"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var sess domainauth.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
		assert.Equal(t, "u1", sess.UserID)
		assert.NotEmpty(t, sess.AccessToken)
		assert.NotEmpty(t, sess.RefreshToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signin", `{"email":"u1@example.com","password":"nope"}`))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "invalid_credentials", env.Error)
		assert.Equal(t, domainauth.ErrInvalidCredentials.Error(), env.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signin", `{"email":`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_json", decodeEnvelope(t, rec).Error)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/signin", `{"email":"a@example.com","password":"x","role":"admin"}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_json", decodeEnvelope(t, rec).Error)
	})
}

func TestAuthAPI_Token(t *testing.T) {
	auth := newFakeAuth()
	auth.add("s1", "u1")
	router := newTestRouter(t, auth, newFakeNotes())

	t.Run("rotates tokens", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/token", `{"refresh_token":"refresh-s1"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var sess domainauth.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
		assert.Equal(t, "s1", sess.ID)
		assert.Equal(t, "access-rotated", sess.AccessToken)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/token", `{}`))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "validation", env.Error)
		assert.Equal(t, "refresh_token", env.Field)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/auth/v1/token", `{"refresh_token":"bogus"}`))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_token", decodeEnvelope(t, rec).Error)
	})
}

func TestAuthAPI_Session(t *testing.T) {
	auth := newFakeAuth()
	auth.add("s1", "u1")
	router := newTestRouter(t, auth, newFakeNotes())

	t.Run("bearer", func(t *testing.T) {
		rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil), "access-s1"))

		require.Equal(t, http.StatusOK, rec.Code)
		var sess domainauth.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
		assert.Equal(t, "s1", sess.ID)
		assert.Empty(t, sess.AccessToken, "tokens are not echoed back")
		assert.Empty(t, sess.RefreshToken)
	})

	t.Run("rejected bearer", func(t *testing.T) {
		rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil), "stale"))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_token", decodeEnvelope(t, rec).Error)
	})

	t.Run("no credentials", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication_required", decodeEnvelope(t, rec).Error)
	})
}

func TestAuthAPI_SignOut(t *testing.T) {
	auth := newFakeAuth()
	auth.add("s1", "u1")
	router := newTestRouter(t, auth, newFakeNotes())

	rec := serve(router, withBearer(httptest.NewRequest(http.MethodPost, "/auth/v1/signout", nil), "access-s1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, auth.signedOut)

	rec = serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil), "access-s1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
