package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	apperrors "github.com/target/notekeeper/internal/errors"
)

// UIHandlers renders the guarded browser pages.
type UIHandlers struct {
	Notes  NoteServiceInterface
	Pages  *TemplateRenderer
	Logger *slog.Logger
}

func (h *UIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Dashboard lists the notes visible to the signed-in user.
// GET /dashboard.
func (h *UIHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	viewer := domainauth.IdentityFrom(GetSessionFromContext(r.Context()))
	list, err := h.Notes.List(r.Context(), listOptions(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderPage(w, h.Pages, http.StatusOK, PageData{
		Title:      "Notes",
		Page:       PageDashboard,
		Viewer:     viewer,
		Notes:      list.Notes,
		Categories: list.Categories,
	})
}

// NoteView shows a single note.
// GET /dashboard/notes/{id}.
func (h *UIHandlers) NoteView(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	note, err := h.Notes.Get(r.Context(), ViewerID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderPage(w, h.Pages, http.StatusOK, PageData{
		Title:  note.Title,
		Page:   PageNote,
		Viewer: domainauth.IdentityFrom(sess),
		Note:   note,
	})
}

func (h *UIHandlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := DetermineErrorStatus(err)
	msg := apperrors.Message(err, "Something went wrong.")
	if status >= http.StatusInternalServerError {
		h.logger().ErrorContext(r.Context(), "page failed", "path", r.URL.Path, "error", err)
		msg = "Something went wrong."
	}
	renderPage(w, h.Pages, status, PageData{
		Title:  http.StatusText(status),
		Page:   PageError,
		Viewer: domainauth.IdentityFrom(GetSessionFromContext(r.Context())),
		Error:  msg,
	})
}
