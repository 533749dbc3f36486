package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/notekeeper/internal/guard"
	"github.com/target/notekeeper/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth   AuthServiceInterface
	Notes  NoteServiceInterface
	Events ports.AuthEventBus // optional; without it /auth/v1/events answers 501

	// Pages renders the browser pages; nil uses the embedded templates.
	Pages  *TemplateRenderer
	Routes guard.Config

	CookieDomain         string
	SessionLookupTimeout time.Duration
	EventHeartbeat       time.Duration
	// StreamsDone, when closed, ends every open event stream (server shutdown).
	StreamsDone <-chan struct{}
	Logger      *slog.Logger
}

// NewRouter creates and configures the HTTP router. Cross-cutting middleware
// (recover, logging, compression) is applied by the caller.
func NewRouter(services RouterServices) http.Handler {
	if services.Auth == nil || services.Notes == nil {
		panic("httpx: NewRouter requires auth and note services")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pages := services.Pages
	if pages == nil {
		var err error
		pages, err = NewTemplateRenderer(TemplateRendererConfig{Logger: logger})
		if err != nil {
			logger.Error("template parsing failed; pages fall back to plain text", "error", err)
			pages = nil
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	registerAuthAPIRoutes(mux, &AuthAPIHandlers{
		Svc:       services.Auth,
		Events:    services.Events,
		Heartbeat: services.EventHeartbeat,
		Done:      services.StreamsDone,
		Logger:    logger,
	})
	registerNoteRoutes(mux, &NoteHandlers{Svc: services.Notes, Logger: logger}, services.Auth, logger)

	guarded := GuardPages(GuardOptions{
		Auth:          services.Auth,
		LookupTimeout: services.SessionLookupTimeout,
		Routes:        services.Routes,
		Pages:         pages,
		CookieDomain:  services.CookieDomain,
		Logger:        logger,
	})
	registerAuthRoutes(mux, &AuthHandlers{
		Svc:          services.Auth,
		Pages:        pages,
		Routes:       services.Routes,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}, guarded)
	registerUIRoutes(mux, &UIHandlers{Notes: services.Notes, Pages: pages, Logger: logger}, guarded)

	mux.Handle("/", &notFoundHandler{pages: pages})
	return BrowserDetection()(mux)
}

func registerAuthAPIRoutes(mux *http.ServeMux, h *AuthAPIHandlers) {
	authed := RequireAuth(h.Svc, h.logger())
	mux.HandleFunc("POST /auth/v1/signup", h.SignUp)
	mux.HandleFunc("POST /auth/v1/signin", h.SignIn)
	mux.HandleFunc("POST /auth/v1/token", h.Token)
	mux.Handle("POST /auth/v1/signout", authed(http.HandlerFunc(h.SignOut)))
	mux.Handle("GET /auth/v1/session", authed(http.HandlerFunc(h.Session)))
	mux.Handle("GET /auth/v1/events", authed(http.HandlerFunc(h.StreamEvents)))
}

func registerNoteRoutes(mux *http.ServeMux, h *NoteHandlers, auth SessionResolver, logger *slog.Logger) {
	optional := OptionalAuth(auth, logger)
	authed := RequireAuth(auth, logger)
	mux.Handle("GET /api/notes", optional(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/notes/{id}", optional(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/notes", authed(http.HandlerFunc(h.Create)))
	mux.Handle("PATCH /api/notes/{id}", authed(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/notes/{id}", authed(http.HandlerFunc(h.Delete)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, guarded func(http.Handler) http.Handler) {
	// The entry point goes through the guard so signed-in users bounce to their destination.
	mux.Handle("GET "+PathLogin, guarded(http.HandlerFunc(h.LoginPage)))
	mux.HandleFunc("POST "+PathLogin, h.LoginSubmit)
	mux.HandleFunc("POST "+PathLogout, h.Logout)
	mux.HandleFunc("GET "+PathSSOLogin, h.SSOLogin)
	mux.HandleFunc("GET "+PathSSOCallback, h.SSOCallback)
}

func registerUIRoutes(mux *http.ServeMux, h *UIHandlers, guarded func(http.Handler) http.Handler) {
	mux.Handle("GET /{$}", http.RedirectHandler(PathDashboard, http.StatusFound))
	mux.Handle("GET "+PathDashboard, guarded(http.HandlerFunc(h.Dashboard)))
	mux.Handle("GET "+PathDashboard+"/notes/{id}", guarded(http.HandlerFunc(h.NoteView)))
}

// notFoundHandler answers unmatched routes with an HTML page for browsers and
// a JSON envelope for API clients.
type notFoundHandler struct {
	pages *TemplateRenderer
}

func (h *notFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsBrowserRequest(r) {
		renderPage(w, h.pages, http.StatusNotFound, PageData{
			Title: http.StatusText(http.StatusNotFound),
			Page:  PageError,
			Error: "The page you are looking for does not exist.",
		})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found"})
}
