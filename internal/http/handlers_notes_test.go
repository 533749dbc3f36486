package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/notekeeper/internal/domain/model"
)

func notesFixture() (*fakeAuth, *fakeNotes) {
	auth := newFakeAuth()
	auth.add("s1", "u1")
	auth.add("s2", "u2")
	notes := newFakeNotes(
		testNote("a", "u1", false),
		testNote("b", "u1", true),
		testNote("c", "u2", false),
	)
	return auth, notes
}

func decodeNoteList(t *testing.T, rec *httptest.ResponseRecorder) model.NoteList {
	t.Helper()
	var list model.NoteList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list), rec.Body.String())
	return list
}

func noteIDs(list model.NoteList) []string {
	ids := make([]string, 0, len(list.Notes))
	for _, n := range list.Notes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestNotesAPI_List(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	t.Run("anonymous callers see public notes", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/notes", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"b"}, noteIDs(decodeNoteList(t, rec)))
		assert.Empty(t, notes.lastList.Viewer)
	})

	t.Run("owners see their private notes", func(t *testing.T) {
		rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/api/notes", nil), "access-s1"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"a", "b"}, noteIDs(decodeNoteList(t, rec)))
		assert.Equal(t, "u1", notes.lastList.Viewer)
	})

	t.Run("filters are passed through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notes?view=MINE&category=work&q=plan&limit=10&offset=20", nil)
		rec := serve(router, withBearer(req, "access-s2"))

		require.Equal(t, http.StatusOK, rec.Code)
		opts := notes.lastList
		assert.Equal(t, model.ViewMine, opts.View)
		require.NotNil(t, opts.Category)
		assert.Equal(t, "work", *opts.Category)
		require.NotNil(t, opts.Search)
		assert.Equal(t, "plan", *opts.Search)
		assert.Equal(t, 10, opts.Limit)
		assert.Equal(t, 20, opts.Offset)
	})

	t.Run("a rejected bearer is not downgraded to anonymous", func(t *testing.T) {
		rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/api/notes", nil), "expired"))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_token", decodeEnvelope(t, rec).Error)
	})

	t.Run("service failures are withheld", func(t *testing.T) {
		_, failing := notesFixture()
		failing.listErr = errors.New("pq: relation does not exist")
		router := newTestRouter(t, auth, failing)

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/notes", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "internal", env.Error)
		assert.Equal(t, "internal server error", env.Message)
	})
}

func TestNotesAPI_Get(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	rec := serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/api/notes/a", nil), "access-s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var n model.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, "a", n.ID)

	rec = serve(router, withBearer(httptest.NewRequest(http.MethodGet, "/api/notes/a", nil), "access-s2"))
	require.Equal(t, http.StatusNotFound, rec.Code, "private notes are invisible to others")
	assert.Equal(t, "not_found", decodeEnvelope(t, rec).Error)
}

func TestNotesAPI_Create(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	t.Run("requires a session", func(t *testing.T) {
		rec := serve(router, jsonRequest(http.MethodPost, "/api/notes", `{"title":"x"}`))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication_required", decodeEnvelope(t, rec).Error)
	})

	t.Run("creates for the caller", func(t *testing.T) {
		req := withBearer(jsonRequest(http.MethodPost, "/api/notes", `{"title":"Groceries","is_public":true}`), "access-s1")
		rec := serve(router, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var n model.Note
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
		assert.Equal(t, "Groceries", n.Title)
		assert.Equal(t, "u1", n.UserID)
		assert.True(t, n.IsPublic)
	})

	t.Run("validation errors name the field", func(t *testing.T) {
		rec := serve(router, withBearer(jsonRequest(http.MethodPost, "/api/notes", `{"title":""}`), "access-s1"))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "validation", env.Error)
		assert.Equal(t, "title", env.Field)
		assert.Equal(t, "title is required", env.Message)
	})
}

func TestNotesAPI_UpdateAndDelete(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	rec := serve(router, withBearer(jsonRequest(http.MethodPatch, "/api/notes/b", `{"title":"Renamed"}`), "access-s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Renamed"`)

	rec = serve(router, withBearer(jsonRequest(http.MethodPatch, "/api/notes/b", `{"title":"Hijacked"}`), "access-s2"))
	require.Equal(t, http.StatusForbidden, rec.Code, "public notes are readable but not writable by others")
	assert.Equal(t, "forbidden", decodeEnvelope(t, rec).Error)

	rec = serve(router, withBearer(httptest.NewRequest(http.MethodDelete, "/api/notes/b", nil), "access-s2"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, withBearer(httptest.NewRequest(http.MethodDelete, "/api/notes/b", nil), "access-s1"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(router, withBearer(httptest.NewRequest(http.MethodDelete, "/api/notes/b", nil), "access-s1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard_RendersVisibleNotes(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	rec := serve(router, withSessionCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "s2"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Note b")
	assert.Contains(t, body, "Note c")
	assert.NotContains(t, body, "Note a")
	assert.Contains(t, body, "u2@example.com", "the signed-in viewer is shown")
}

func TestNoteView_HiddenNoteIsNotFound(t *testing.T) {
	auth, notes := notesFixture()
	router := newTestRouter(t, auth, notes)

	rec := serve(router, withSessionCookie(httptest.NewRequest(http.MethodGet, "/dashboard/notes/a", nil), "s2"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Note not found")
}
