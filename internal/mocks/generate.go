// Package mocks provides gomock implementations of the repository ports in
// internal/core. Hand-written doubles for the auth ports live in mocks/auth.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	notes := mocks.NewMockNoteRepository(ctrl)
//	notes.EXPECT().GetByID(gomock.Any(), "n1").Return(note, nil)
package mocks

// Create, GetByID, List, Update, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=note_repository_mock.go github.com/target/notekeeper/internal/core NoteRepository

// Create, GetByID, GetByEmail, UpsertFederated, Confirm, Delete, List
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_repository_mock.go github.com/target/notekeeper/internal/core AccountRepository

// Set, Get, Delete, Incr, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/notekeeper/internal/core CacheRepository
