package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/domain/model"
	apperrors "github.com/target/notekeeper/internal/errors"
	authmocks "github.com/target/notekeeper/internal/mocks/auth"
	"github.com/target/notekeeper/internal/service"
)

const testPassword = "hunter22"

// fakeAuth is an in-memory AuthServiceInterface.
type fakeAuth struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	lookupErr error
	// hang blocks lookups, ignoring context cancellation, until closed.
	hang chan struct{}

	signUp    domainauth.SignUpResult
	signUpErr error
	signInErr error
	signedOut []string

	sso       bool
	completed *service.CompleteLoginInput
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{sessions: make(map[string]domainauth.Session)}
}

func (f *fakeAuth) add(id, userID string) domainauth.Session {
	now := time.Now()
	s := domainauth.Session{
		ID:               id,
		UserID:           userID,
		Email:            userID + "@example.com",
		AccessToken:      "access-" + id,
		RefreshToken:     "refresh-" + id,
		IssuedAt:         now,
		ExpiresAt:        now.Add(time.Hour),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}
	f.mu.Lock()
	f.sessions[id] = s
	f.mu.Unlock()
	return s
}

func (f *fakeAuth) wait() error {
	if f.hang != nil {
		<-f.hang
	}
	return f.lookupErr
}

func (f *fakeAuth) GetSession(_ context.Context, id string) (*domainauth.Session, error) {
	if err := f.wait(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	return &s, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, bearer string) (*domainauth.Session, error) {
	if err := f.wait(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.AccessToken == bearer {
			return &s, nil
		}
	}
	return nil, domainauth.ErrInvalidToken
}

func (f *fakeAuth) SignUp(_ context.Context, _ domainauth.Credentials) (domainauth.SignUpResult, error) {
	return f.signUp, f.signUpErr
}

func (f *fakeAuth) SignIn(_ context.Context, creds domainauth.Credentials) (*domainauth.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	if creds.Password != testPassword {
		return nil, domainauth.ErrInvalidCredentials
	}
	s := f.add("s-signin", "u1")
	return &s, nil
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*domainauth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.RefreshToken == token {
			s.AccessToken = "access-rotated"
			s.RefreshToken = "refresh-rotated"
			f.sessions[id] = s
			return &s, nil
		}
	}
	return nil, domainauth.ErrInvalidToken
}

func (f *fakeAuth) SignOut(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, id)
	delete(f.sessions, id)
	return nil
}

func (f *fakeAuth) SSOEnabled() bool { return f.sso }

func (f *fakeAuth) BeginSSO(_ context.Context, _ string) (*service.BeginLoginResult, error) {
	return &service.BeginLoginResult{
		AuthURL: "https://idp.example.com/authorize?state=st",
		State:   "st",
		Nonce:   "nn",
	}, nil
}

func (f *fakeAuth) CompleteSSO(_ context.Context, in service.CompleteLoginInput) (*domainauth.Session, error) {
	f.completed = &in
	s := f.add("s-sso", "u2")
	return &s, nil
}

// fakeNotes is an in-memory NoteServiceInterface with the same visibility rules as the real service.
type fakeNotes struct {
	mu       sync.Mutex
	notes    map[string]*model.Note
	lastList model.NotesListOptions
	listErr  error
}

func newFakeNotes(notes ...*model.Note) *fakeNotes {
	f := &fakeNotes{notes: make(map[string]*model.Note)}
	for _, n := range notes {
		f.notes[n.ID] = n
	}
	return f
}

func (f *fakeNotes) List(_ context.Context, opts model.NotesListOptions) (model.NoteList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = opts
	if f.listErr != nil {
		return model.NoteList{}, f.listErr
	}
	var out []*model.Note
	for _, n := range f.notes {
		if n.VisibleTo(opts.Viewer) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return model.NewNoteList(out), nil
}

func (f *fakeNotes) Get(_ context.Context, viewer, id string) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok || !n.VisibleTo(viewer) {
		return nil, apperrors.NotFound("Note not found")
	}
	return n, nil
}

func (f *fakeNotes) Create(_ context.Context, viewer string, req *model.CreateNoteRequest) (*model.Note, error) {
	if viewer == "" {
		return nil, apperrors.Unauthorized("sign in to create notes")
	}
	if req.Title == "" {
		return nil, apperrors.ValidationField("title", "title is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &model.Note{ID: "n-new", Title: req.Title, Content: req.Content, Category: req.Category, UserID: viewer}
	if req.IsPublic != nil {
		n.IsPublic = *req.IsPublic
	}
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeNotes) writable(viewer, id string) (*model.Note, error) {
	n, ok := f.notes[id]
	if !ok || !n.VisibleTo(viewer) {
		return nil, apperrors.NotFound("Note not found")
	}
	if !n.OwnedBy(viewer) {
		return nil, apperrors.Forbidden("only the owner can change this note")
	}
	return n, nil
}

func (f *fakeNotes) Update(_ context.Context, viewer, id string, req model.UpdateNoteRequest) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.writable(viewer, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		n.Title = *req.Title
	}
	return n, nil
}

func (f *fakeNotes) Delete(_ context.Context, viewer, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.writable(viewer, id); err != nil {
		return err
	}
	delete(f.notes, id)
	return nil
}

func testNote(id, owner string, public bool) *model.Note {
	return &model.Note{ID: id, Title: "Note " + id, UserID: owner, UserEmail: owner + "@example.com", IsPublic: public}
}

func newTestRouter(t *testing.T, auth *fakeAuth, notes *fakeNotes, opts ...func(*RouterServices)) http.Handler {
	t.Helper()
	rs := RouterServices{
		Auth:                 auth,
		Notes:                notes,
		Events:               authmocks.NewMemoryEventBus(),
		SessionLookupTimeout: 50 * time.Millisecond,
		EventHeartbeat:       time.Hour,
		Logger:               slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(&rs)
	}
	return NewRouter(rs)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func withSessionCookie(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: cookieSession, Value: id})
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
