//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxNoteTitleLen    = 255
	maxNoteCategoryLen = 100
)

// ViewMode selects which notes a listing returns.
type ViewMode string

const (
	// ViewAll lists public notes plus the viewer's own.
	ViewAll ViewMode = "all"
	// ViewMine lists only the viewer's notes.
	ViewMine ViewMode = "mine"
	// ViewPublic lists only public notes.
	ViewPublic ViewMode = "public"
)

// Valid reports whether the view mode is supported.
func (v ViewMode) Valid() bool {
	switch v {
	case ViewAll, ViewMine, ViewPublic:
		return true
	default:
		return false
	}
}

// ParseViewMode normalizes a view mode; empty input means ViewAll.
func ParseViewMode(value string) (ViewMode, bool) {
	v := ViewMode(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return ViewAll, true
	}
	if v.Valid() {
		return v, true
	}
	return "", false
}

// Note is a user's note. UserEmail is populated from the owning account on reads.
type Note struct {
	ID        string    `json:"id"                   db:"id"`
	Title     string    `json:"title"                db:"title"`
	Content   *string   `json:"content"              db:"content"`
	IsPublic  bool      `json:"is_public"            db:"is_public"`
	Category  *string   `json:"category"             db:"category"`
	CreatedAt time.Time `json:"created_at"           db:"created_at"`
	UpdatedAt time.Time `json:"updated_at"           db:"updated_at"`
	UserID    string    `json:"user_id"              db:"user_id"`
	UserEmail string    `json:"user_email,omitempty" db:"user_email"`
}

// OwnedBy reports whether userID owns the note.
func (n *Note) OwnedBy(userID string) bool {
	return n != nil && userID != "" && n.UserID == userID
}

// VisibleTo reports whether userID may read the note.
func (n *Note) VisibleTo(userID string) bool {
	return n != nil && (n.IsPublic || n.OwnedBy(userID))
}

// NotesListOptions controls filtering and paging for note listings.
// Viewer is the signed-in user ID, empty for anonymous callers; with no viewer
// every view collapses to public notes.
type NotesListOptions struct {
	Viewer   string
	View     ViewMode
	Category *string // exact match
	Search   *string // substring match on title or content (ILIKE)
	Limit    int
	Offset   int
}

// NoteList is a page of notes plus the categories present in it.
type NoteList struct {
	Notes      []*Note  `json:"notes"`
	Categories []string `json:"categories"`
}

// NewNoteList builds a NoteList, deriving the sorted unique non-empty categories.
func NewNoteList(notes []*Note) NoteList {
	seen := make(map[string]struct{})
	cats := make([]string, 0)
	for _, n := range notes {
		if n.Category == nil || *n.Category == "" {
			continue
		}
		if _, ok := seen[*n.Category]; ok {
			continue
		}
		seen[*n.Category] = struct{}{}
		cats = append(cats, *n.Category)
	}
	sort.Strings(cats)
	if notes == nil {
		notes = []*Note{}
	}
	return NoteList{Notes: notes, Categories: cats}
}

// CreateNoteRequest represents parameters to create a Note.
type CreateNoteRequest struct {
	Title    string  `json:"title"`
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
	Category *string `json:"category,omitempty"`
}

// Normalize trims fields and applies defaults: empty content, private, no category.
func (r *CreateNoteRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	if r.Content == nil {
		empty := ""
		r.Content = &empty
	}
	if r.IsPublic == nil {
		private := false
		r.IsPublic = &private
	}
	r.Category = normalizeCategory(r.Category)
}

// Validate validates CreateNoteRequest.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title,
			validation.Required.Error("title is required"),
			validation.By(maxRunes(maxNoteTitleLen, "title")),
		),
		validation.Field(&r.Category, validation.By(maxRunes(maxNoteCategoryLen, "category"))),
	)
}

// UpdateNoteRequest represents parameters to update a Note. Nil fields are left
// unchanged; an empty Category clears it.
type UpdateNoteRequest struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
	Category *string `json:"category,omitempty"`
}

// HasUpdates reports whether any field is set.
func (r *UpdateNoteRequest) HasUpdates() bool {
	return r.Title != nil || r.Content != nil || r.IsPublic != nil || r.Category != nil
}

// Validate validates UpdateNoteRequest, trimming the title in place.
func (r *UpdateNoteRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Title,
			validation.When(r.Title != nil, validation.Required.Error("title cannot be empty")),
			validation.By(maxRunes(maxNoteTitleLen, "title")),
		),
		validation.Field(&r.Category, validation.By(maxRunes(maxNoteCategoryLen, "category"))),
	)
}

func normalizeCategory(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.TrimSpace(*c)
	if v == "" {
		return nil
	}
	return &v
}

func maxRunes(limit int, field string) validation.RuleFunc {
	return func(value any) error {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				return nil
			}
			s = *v
		default:
			return nil
		}
		if utf8.RuneCountInString(s) > limit {
			return validation.NewError("validation_too_long", field+" cannot exceed "+strconv.Itoa(limit)+" characters")
		}
		return nil
	}
}
