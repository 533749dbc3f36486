package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working behind the logger.
func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionResolver looks up sessions for request credentials.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Authenticate(ctx context.Context, bearer string) (*domainauth.Session, error)
}

// credential says which kind of credential a request presented.
type credential int

const (
	credNone credential = iota
	credCookie
	credBearer
)

// resolveSession returns the session named by the request's bearer token or,
// failing that, its session cookie. Rejected credentials yield a nil session
// and a nil error; err is reserved for lookup failures.
func resolveSession(ctx context.Context, r *http.Request, auth SessionResolver) (*domainauth.Session, credential, error) {
	if token, ok := bearerToken(r); ok {
		sess, err := auth.Authenticate(ctx, token)
		sess, err = acceptCredential(sess, err)
		return sess, credBearer, err
	}

	c, err := r.Cookie(cookieSession)
	if err != nil || c.Value == "" {
		return nil, credNone, nil
	}
	sess, err := acceptCredential(auth.GetSession(ctx, c.Value))
	return sess, credCookie, err
}

func acceptCredential(sess *domainauth.Session, err error) (*domainauth.Session, error) {
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, domainauth.ErrSessionNotFound), errors.Is(err, domainauth.ErrInvalidToken):
		return nil, nil
	default:
		return nil, err
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthenticated(w http.ResponseWriter, cred credential) {
	if cred == credBearer {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: domainauth.ErrorCode(domainauth.ErrInvalidToken),
			Err:     domainauth.ErrInvalidToken,
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
}

// RequireAuth returns a middleware that requires authentication.
// If the user is not authenticated, it returns a 401 Unauthorized response.
func RequireAuth(auth SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, cred, err := resolveSession(r.Context(), r, auth)
			if err != nil {
				RenderError(w, r, err, logger)
				return
			}
			if session == nil {
				writeUnauthenticated(w, cred)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// OptionalAuth adds the session to the request context when one is present.
// Anonymous requests continue; a rejected bearer token is still a 401 so
// clients learn that their token is gone.
func OptionalAuth(auth SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, cred, err := resolveSession(r.Context(), r, auth)
			if err != nil {
				RenderError(w, r, err, logger)
				return
			}
			if session == nil && cred == credBearer {
				writeUnauthenticated(w, cred)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// It sets a context value that can be used by downstream handlers to determine
// whether to return HTML or JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	return isBrowserRequest(r)
}

// isBrowserRequest treats everything outside the JSON APIs that accepts HTML
// (or states no preference) as a browser request.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/auth/v1/") {
		return false
	}
	if _, ok := bearerToken(r); ok {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}
