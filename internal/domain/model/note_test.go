package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseViewMode(t *testing.T) {
	tests := []struct {
		in   string
		want ViewMode
		ok   bool
	}{
		{"", ViewAll, true},
		{" MINE ", ViewMine, true},
		{"public", ViewPublic, true},
		{"all", ViewAll, true},
		{"friends", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseViewMode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNote_Visibility(t *testing.T) {
	private := &Note{UserID: "u1"}
	public := &Note{UserID: "u1", IsPublic: true}

	assert.True(t, private.OwnedBy("u1"))
	assert.False(t, private.OwnedBy(""))
	assert.True(t, private.VisibleTo("u1"))
	assert.False(t, private.VisibleTo("u2"))
	assert.False(t, private.VisibleTo(""))
	assert.True(t, public.VisibleTo(""))
	assert.False(t, (*Note)(nil).VisibleTo("u1"))
}

func TestNewNoteList_Categories(t *testing.T) {
	list := NewNoteList([]*Note{
		{ID: "1", Category: strPtr("work")},
		{ID: "2", Category: nil},
		{ID: "3", Category: strPtr("")},
		{ID: "4", Category: strPtr("home")},
		{ID: "5", Category: strPtr("work")},
	})
	assert.Len(t, list.Notes, 5)
	assert.Equal(t, []string{"home", "work"}, list.Categories)

	empty := NewNoteList(nil)
	assert.NotNil(t, empty.Notes)
	assert.NotNil(t, empty.Categories)
}

func TestCreateNoteRequest_NormalizeAndValidate(t *testing.T) {
	req := CreateNoteRequest{Title: "  Groceries  ", Category: strPtr("   ")}
	req.Normalize()
	require.NoError(t, req.Validate())

	assert.Equal(t, "Groceries", req.Title)
	require.NotNil(t, req.Content)
	assert.Equal(t, "", *req.Content)
	require.NotNil(t, req.IsPublic)
	assert.False(t, *req.IsPublic)
	assert.Nil(t, req.Category)
}

func TestCreateNoteRequest_ValidateErrors(t *testing.T) {
	blank := CreateNoteRequest{Title: "   "}
	blank.Normalize()
	err := blank.Validate()
	require.Error(t, err)
	field, msg, ok := FirstFieldError(err)
	require.True(t, ok)
	assert.Equal(t, "title", field)
	assert.Equal(t, "title is required", msg)

	long := CreateNoteRequest{Title: strings.Repeat("é", 256)}
	long.Normalize()
	field, msg, ok = FirstFieldError(long.Validate())
	require.True(t, ok)
	assert.Equal(t, "title", field)
	assert.Contains(t, msg, "cannot exceed 255")

	exact := CreateNoteRequest{Title: strings.Repeat("é", 255)}
	exact.Normalize()
	assert.NoError(t, exact.Validate())
}

func TestUpdateNoteRequest_Validate(t *testing.T) {
	var none UpdateNoteRequest
	assert.EqualError(t, none.Validate(), "at least one field must be updated")

	onlyPublic := UpdateNoteRequest{IsPublic: new(bool)}
	assert.NoError(t, onlyPublic.Validate())

	blankTitle := UpdateNoteRequest{Title: strPtr("  ")}
	field, _, ok := FirstFieldError(blankTitle.Validate())
	require.True(t, ok)
	assert.Equal(t, "title", field)

	trimmed := UpdateNoteRequest{Title: strPtr("  New title ")}
	require.NoError(t, trimmed.Validate())
	assert.Equal(t, "New title", *trimmed.Title)

	longCategory := UpdateNoteRequest{Category: strPtr(strings.Repeat("c", 101))}
	field, _, ok = FirstFieldError(longCategory.Validate())
	require.True(t, ok)
	assert.Equal(t, "category", field)
}

func TestCreateAccountRequest_Validate(t *testing.T) {
	assert.NoError(t, CreateAccountRequest{Email: "ann@example.com", Password: "password1"}.Validate())

	field, _, ok := FirstFieldError(CreateAccountRequest{Email: "not-an-email", Password: "password1"}.Validate())
	require.True(t, ok)
	assert.Equal(t, "email", field)

	field, _, ok = FirstFieldError(CreateAccountRequest{Email: "ann@example.com", Password: "short"}.Validate())
	require.True(t, ok)
	assert.Equal(t, "password", field)

	assert.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
}

func TestFirstFieldError_NonValidation(t *testing.T) {
	_, _, ok := FirstFieldError(assert.AnError)
	assert.False(t, ok)
	_, _, ok = FirstFieldError(nil)
	assert.False(t, ok)
}
