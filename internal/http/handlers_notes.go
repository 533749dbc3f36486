package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/notekeeper/internal/domain/model"
)

// NoteServiceInterface is the note service as seen by the HTTP layer.
type NoteServiceInterface interface {
	List(ctx context.Context, opts model.NotesListOptions) (model.NoteList, error)
	Get(ctx context.Context, viewer, id string) (*model.Note, error)
	Create(ctx context.Context, viewer string, req *model.CreateNoteRequest) (*model.Note, error)
	Update(ctx context.Context, viewer, id string, req model.UpdateNoteRequest) (*model.Note, error)
	Delete(ctx context.Context, viewer, id string) error
}

// NoteHandlers serves the notes API under /api/notes. The viewer comes from
// the session the auth middleware put in the request context.
type NoteHandlers struct {
	Svc    NoteServiceInterface
	Logger *slog.Logger
}

func (h *NoteHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// listOptions reads the listing filters shared by the API and the dashboard.
func listOptions(r *http.Request) model.NotesListOptions {
	return model.NotesListOptions{
		Viewer:   ViewerID(r.Context()),
		View:     model.ViewMode(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view")))),
		Category: optionalQuery(r, "category"),
		Search:   optionalQuery(r, "q"),
		Limit:    parseIntQuery(r, "limit", 0),
		Offset:   parseIntQuery(r, "offset", 0),
	}
}

// List returns a page of visible notes.
// GET /api/notes?view=&category=&q=&limit=&offset=.
func (h *NoteHandlers) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.List(r.Context(), listOptions(r))
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get returns one note.
// GET /api/notes/{id}.
func (h *NoteHandlers) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.Svc.Get(r.Context(), ViewerID(r.Context()), r.PathValue("id"))
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusOK, note)
}

// Create stores a note owned by the caller.
// POST /api/notes.
func (h *NoteHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateNoteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	note, err := h.Svc.Create(r.Context(), ViewerID(r.Context()), &req)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusCreated, note)
}

// Update patches a note owned by the caller.
// PATCH /api/notes/{id}.
func (h *NoteHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateNoteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	note, err := h.Svc.Update(r.Context(), ViewerID(r.Context()), r.PathValue("id"), req)
	if err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	WriteJSON(w, http.StatusOK, note)
}

// Delete removes a note owned by the caller.
// DELETE /api/notes/{id}.
func (h *NoteHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), ViewerID(r.Context()), r.PathValue("id")); err != nil {
		RenderError(w, r, err, h.logger())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
