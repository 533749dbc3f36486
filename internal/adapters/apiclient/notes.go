package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/domain/model"
)

// TokenSource yields the bearer token for API calls. An empty token makes
// the call anonymous.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Notes is a client for /api/notes.
type Notes struct {
	client *Client
	tokens TokenSource
}

// NewNotes builds a notes client. A nil TokenSource makes every call anonymous.
func NewNotes(client *Client, tokens TokenSource) *Notes {
	return &Notes{client: client, tokens: tokens}
}

func (n *Notes) token(ctx context.Context) (string, error) {
	if n.tokens == nil {
		return "", nil
	}
	return n.tokens.AccessToken(ctx)
}

// List returns notes matching opts. Viewer is implied by the token.
func (n *Notes) List(ctx context.Context, opts model.NotesListOptions) (model.NoteList, error) {
	q := url.Values{}
	if opts.View != "" {
		q.Set("view", string(opts.View))
	}
	if opts.Category != nil {
		q.Set("category", *opts.Category)
	}
	if opts.Search != nil {
		q.Set("q", *opts.Search)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	tok, err := n.optionalToken(ctx)
	if err != nil {
		return model.NoteList{}, err
	}
	var out model.NoteList
	err = n.client.do(ctx, request{method: http.MethodGet, path: "/api/notes", query: q, token: tok}, &out)
	return out, err
}

// Get fetches one note.
func (n *Notes) Get(ctx context.Context, id string) (*model.Note, error) {
	tok, err := n.optionalToken(ctx)
	if err != nil {
		return nil, err
	}
	var out model.Note
	if err := n.client.do(ctx, request{method: http.MethodGet, path: notePath(id), token: tok}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create stores a new note owned by the signed-in user.
func (n *Notes) Create(ctx context.Context, req model.CreateNoteRequest) (*model.Note, error) {
	tok, err := n.token(ctx)
	if err != nil {
		return nil, err
	}
	var out model.Note
	if err := n.client.do(ctx, request{method: http.MethodPost, path: "/api/notes", token: tok, body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches a note.
func (n *Notes) Update(ctx context.Context, id string, req model.UpdateNoteRequest) (*model.Note, error) {
	tok, err := n.token(ctx)
	if err != nil {
		return nil, err
	}
	var out model.Note
	if err := n.client.do(ctx, request{method: http.MethodPatch, path: notePath(id), token: tok, body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a note.
func (n *Notes) Delete(ctx context.Context, id string) error {
	tok, err := n.token(ctx)
	if err != nil {
		return err
	}
	return n.client.do(ctx, request{method: http.MethodDelete, path: notePath(id), token: tok}, nil)
}

// optionalToken lets reads fall back to anonymous access when signed out.
func (n *Notes) optionalToken(ctx context.Context) (string, error) {
	tok, err := n.token(ctx)
	if err != nil && !isSignedOut(err) {
		return "", err
	}
	return tok, nil
}

func notePath(id string) string { return "/api/notes/" + url.PathEscape(id) }

func isSignedOut(err error) bool { return errors.Is(err, domainauth.ErrSessionNotFound) }
