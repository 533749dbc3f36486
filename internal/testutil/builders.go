// Package testutil provides testing utilities and helpers for notekeeper.
package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/target/notekeeper/internal/domain/model"
)

// NoteRequestBuilder provides a fluent interface for building CreateNoteRequest objects for testing.
type NoteRequestBuilder struct {
	req *model.CreateNoteRequest
}

// NewNoteRequest creates a NoteRequestBuilder for a private, uncategorised note.
func NewNoteRequest(title string) *NoteRequestBuilder {
	return &NoteRequestBuilder{req: &model.CreateNoteRequest{Title: title}}
}

// WithContent sets the note body.
func (b *NoteRequestBuilder) WithContent(content string) *NoteRequestBuilder {
	b.req.Content = &content
	return b
}

// Public marks the note public.
func (b *NoteRequestBuilder) Public() *NoteRequestBuilder {
	b.req.IsPublic = BoolPtr(true)
	return b
}

// WithCategory sets the category.
func (b *NoteRequestBuilder) WithCategory(category string) *NoteRequestBuilder {
	b.req.Category = &category
	return b
}

// Build returns the request.
func (b *NoteRequestBuilder) Build() *model.CreateNoteRequest {
	return b.req
}

// SeedAccount inserts a confirmed password account directly and returns its ID.
func SeedAccount(t TestingTB, db *sql.DB, email string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, provider, confirmed)
		VALUES ($1, 'x', 'password', TRUE)
		RETURNING id`, model.NormalizeEmail(email)).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed account %s: %v", email, err)
	}
	return id
}
