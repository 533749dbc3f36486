package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

// AuthAPIHandlers serves the JSON auth API under /auth/v1 used by non-browser clients.
type AuthAPIHandlers struct {
	Svc    AuthServiceInterface
	Events ports.AuthEventBus
	// Heartbeat is the idle interval between keep-alive comments on the event stream.
	Heartbeat time.Duration
	// Done ends open event streams when closed.
	Done   <-chan struct{}
	Logger *slog.Logger
}

func (h *AuthAPIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SignUp registers an account.
// POST /auth/v1/signup. 201 with a session, or 202 when confirmation is pending.
func (h *AuthAPIHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var creds domainauth.Credentials
	if !DecodeJSON(w, r, &creds) {
		return
	}
	res, err := h.Svc.SignUp(r.Context(), creds)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	status := http.StatusCreated
	if res.Session == nil {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, res)
}

// SignIn exchanges credentials for a session.
// POST /auth/v1/signin.
func (h *AuthAPIHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var creds domainauth.Credentials
	if !DecodeJSON(w, r, &creds) {
		return
	}
	sess, err := h.Svc.SignIn(r.Context(), creds)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Token rotates a session's tokens.
// POST /auth/v1/token.
func (h *AuthAPIHandlers) Token(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("refresh_token is required"),
			Field:   "refresh_token",
		})
		return
	}
	sess, err := h.Svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

// SignOut ends the caller's session.
// POST /auth/v1/signout (authenticated).
func (h *AuthAPIHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeUnauthenticated(w, credNone)
		return
	}
	if err := h.Svc.SignOut(r.Context(), sess.ID); err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session reports the caller's session without its tokens.
// GET /auth/v1/session (authenticated).
func (h *AuthAPIHandlers) Session(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeUnauthenticated(w, credNone)
		return
	}
	WriteJSON(w, http.StatusOK, withoutTokens(*sess))
}

func withoutTokens(s domainauth.Session) domainauth.Session {
	s.AccessToken = ""
	s.RefreshToken = ""
	return s
}
