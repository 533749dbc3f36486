package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/target/notekeeper/internal/data/database"
	"github.com/target/notekeeper/internal/data/pgxutil"
	"github.com/target/notekeeper/internal/domain/model"
)

const (
	defaultNoteListLimit = 50
	maxNoteListLimit     = 200
)

// NoteRepo provides database operations for notes.
type NoteRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewNoteRepo creates a new NoteRepo with the real time provider.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewNoteRepoWithTimeProvider creates a NoteRepo with a custom time provider.
func NewNoteRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *NoteRepo {
	return &NoteRepo{DB: db, timeProvider: tp}
}

// Create inserts a note owned by owner and returns it with the owner's email.
func (r *NoteRepo) Create(ctx context.Context, owner string, req *model.CreateNoteRequest) (*model.Note, error) {
	if req == nil {
		return nil, errors.New("create note request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	var out model.Note
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, noteInsertQuery,
			req.Title, req.Content, *req.IsPublic, req.Category, owner, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Note])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a note by ID.
func (r *NoteRepo) GetByID(ctx context.Context, id string) (*model.Note, error) {
	var out model.Note
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, noteGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Note])
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get note by ID: %w", err)
	}
	return &out, nil
}

// List returns the notes visible under opts, newest first.
func (r *NoteRepo) List(ctx context.Context, opts model.NotesListOptions) ([]*model.Note, error) {
	query, args := database.BuildListQuery(buildNoteQueryOptions(opts))

	var rowsOut []model.Note
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Note])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	res := make([]*model.Note, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Update applies the set fields of req and bumps updated_at.
func (r *NoteRepo) Update(ctx context.Context, id string, req model.UpdateNoteRequest) (*model.Note, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	setClause, args := buildNoteUpdateClause(req, r.timeProvider.Now().UTC())
	args = append(args, id)
	query := "WITH n AS (UPDATE notes SET " + setClause + " WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING *) " + noteSelectFromCTE

	var out model.Note
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Note])
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return &out, nil
}

// Delete deletes a note by ID.
func (r *NoteRepo) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
		if err != nil {
			if isMissing(err) {
				return nil
			}
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return affected > 0, nil
}

// --- helpers ---

const (
	noteSelectFromCTE = `
		SELECT n.id, n.title, n.content, n.is_public, n.category, n.created_at, n.updated_at,
		       n.user_id, u.email AS user_email
		FROM n JOIN users u ON u.id = n.user_id`

	noteInsertQuery = `
		WITH n AS (
			INSERT INTO notes (title, content, is_public, category, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING *
		)` + noteSelectFromCTE

	noteGetByIDQuery = `
		SELECT id, title, content, is_public, category, created_at, updated_at, user_id, user_email
		FROM note_listing
		WHERE id = $1`
)

func noteColumns() []string {
	return []string{
		"id",
		"title",
		"content",
		"is_public",
		"category",
		"created_at",
		"updated_at",
		"user_id",
		"user_email",
	}
}

// buildNoteQueryOptions turns listing options into a query over note_listing.
// Without a viewer every view collapses to public notes.
func buildNoteQueryOptions(opts model.NotesListOptions) *database.ListQueryOptions {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultNoteListLimit
	}
	limit = min(limit, maxNoteListLimit)

	queryOpts := []database.ListQueryOption{
		database.WithColumns(noteColumns()...),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	}

	view := opts.View
	if view == "" {
		view = model.ViewAll
	}
	switch {
	case opts.Viewer == "" || view == model.ViewPublic:
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("is_public", database.Equal, true)))
	case view == model.ViewMine:
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("user_id", database.Equal, opts.Viewer)))
	default:
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereRawCond("is_public = $1 OR user_id = $2", true, opts.Viewer)))
	}

	if opts.Category != nil && strings.TrimSpace(*opts.Category) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("category", database.Equal, strings.TrimSpace(*opts.Category))))
	}
	if opts.Search != nil && strings.TrimSpace(*opts.Search) != "" {
		pattern := "%" + escapeLike(strings.TrimSpace(*opts.Search)) + "%"
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereRawCond("title ILIKE $1 OR content ILIKE $1", pattern)))
	}

	queryOpts = append(queryOpts,
		database.WithOrderBy("updated_at", "DESC"),
		database.WithOrderBy("id", "ASC"),
	)
	return database.NewListQueryOptions("note_listing", queryOpts...)
}

// escapeLike escapes LIKE wildcards so search input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildNoteUpdateClause builds the SET clause for req; updated_at is always set.
func buildNoteUpdateClause(req model.UpdateNoteRequest, now any) (string, []any) {
	setParts := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(col string, v any) {
		args = append(args, v)
		setParts = append(setParts, col+" = $"+strconv.Itoa(len(args)))
	}

	if req.Title != nil {
		add("title", *req.Title)
	}
	if req.Content != nil {
		add("content", *req.Content)
	}
	if req.IsPublic != nil {
		add("is_public", *req.IsPublic)
	}
	if req.Category != nil {
		if c := strings.TrimSpace(*req.Category); c == "" {
			setParts = append(setParts, "category = NULL")
		} else {
			add("category", c)
		}
	}
	add("updated_at", now)
	return strings.Join(setParts, ", "), args
}
