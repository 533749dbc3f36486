package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/notekeeper/internal/core"
	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/domain/model"
	apperrors "github.com/target/notekeeper/internal/errors"
)

// NotePaging bounds listing page sizes.
type NotePaging struct {
	DefaultLimit int
	MaxLimit     int
}

// NoteServiceOptions groups dependencies for NoteService.
type NoteServiceOptions struct {
	Repo   core.NoteRepository
	Paging NotePaging
	Logger *slog.Logger
}

// NoteService applies ownership and visibility rules on top of the note repository.
type NoteService struct {
	repo   core.NoteRepository
	paging NotePaging
	logger *slog.Logger
}

// NewNoteService constructs a new NoteService.
func NewNoteService(opts NoteServiceOptions) *NoteService {
	if opts.Repo == nil {
		panic("service: NoteService requires a repository")
	}
	paging := opts.Paging
	if paging.DefaultLimit <= 0 {
		paging.DefaultLimit = 50
	}
	if paging.MaxLimit < paging.DefaultLimit {
		paging.MaxLimit = paging.DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NoteService{repo: opts.Repo, paging: paging, logger: logger.With("component", "note_service")}
}

// List returns the notes visible to opts.Viewer plus their categories.
func (s *NoteService) List(ctx context.Context, opts model.NotesListOptions) (model.NoteList, error) {
	if opts.View == "" {
		opts.View = model.ViewAll
	}
	if !opts.View.Valid() {
		return model.NoteList{}, apperrors.ValidationField("view", "view must be one of all, mine, public")
	}
	if opts.View == model.ViewMine && opts.Viewer == "" {
		return model.NoteList{}, apperrors.Unauthorized("sign in to list your notes")
	}
	switch {
	case opts.Limit <= 0:
		opts.Limit = s.paging.DefaultLimit
	case opts.Limit > s.paging.MaxLimit:
		opts.Limit = s.paging.MaxLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	notes, err := s.repo.List(ctx, opts)
	if err != nil {
		return model.NoteList{}, apperrors.MapDBError(err)
	}
	return model.NewNoteList(notes), nil
}

// Get returns a note the viewer owns or that is public. Anything else is
// reported as not found.
func (s *NoteService) Get(ctx context.Context, viewer, id string) (*model.Note, error) {
	note, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !note.VisibleTo(viewer) {
		return nil, errNoteNotFound()
	}
	return note, nil
}

// Create stores a note owned by viewer.
func (s *NoteService) Create(ctx context.Context, viewer string, req *model.CreateNoteRequest) (*model.Note, error) {
	if viewer == "" {
		return nil, apperrors.Unauthorized("sign in to create notes")
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	note, err := s.repo.Create(ctx, viewer, req)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	s.logger.DebugContext(ctx, "note created", "note_id", note.ID, "user_id", viewer)
	return note, nil
}

// Update changes a note owned by viewer.
func (s *NoteService) Update(ctx context.Context, viewer, id string, req model.UpdateNoteRequest) (*model.Note, error) {
	if err := s.authorizeWrite(ctx, viewer, id); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	note, err := s.repo.Update(ctx, id, req)
	if errors.Is(err, data.ErrNoteNotFound) {
		return nil, errNoteNotFound()
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return note, nil
}

// Delete removes a note owned by viewer.
func (s *NoteService) Delete(ctx context.Context, viewer, id string) error {
	if err := s.authorizeWrite(ctx, viewer, id); err != nil {
		return err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if !ok {
		return errNoteNotFound()
	}
	s.logger.DebugContext(ctx, "note deleted", "note_id", id, "user_id", viewer)
	return nil
}

// authorizeWrite allows writes by the owner only. Private notes of other users
// stay hidden behind not found.
func (s *NoteService) authorizeWrite(ctx context.Context, viewer, id string) error {
	if viewer == "" {
		return apperrors.Unauthorized("sign in to change notes")
	}
	note, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if note.OwnedBy(viewer) {
		return nil
	}
	if !note.IsPublic {
		return errNoteNotFound()
	}
	return apperrors.Forbidden("only the owner can change this note")
}

func (s *NoteService) load(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, errNoteNotFound()
	}
	note, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, data.ErrNoteNotFound) {
		return nil, errNoteNotFound()
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return note, nil
}

func errNoteNotFound() error {
	return apperrors.Wrap(data.ErrNoteNotFound, apperrors.ErrCodeNotFound, "Note not found")
}
