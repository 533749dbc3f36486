// Package devseed loads demo accounts and notes into a development database.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/notekeeper/internal/core"
	"github.com/target/notekeeper/internal/data"
	"github.com/target/notekeeper/internal/data/cryptoutil"
	"github.com/target/notekeeper/internal/domain/model"
	"github.com/target/notekeeper/internal/ports"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "notekeeper-dev"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Accounts core.AccountRepository
	Notes    core.NoteRepository
	Hasher   ports.PasswordHasher
}

// NewServices constructs the seeding dependencies backed by db.
func NewServices(db *sql.DB) Services {
	return Services{
		Accounts: data.NewAccountRepo(db),
		Notes:    data.NewNoteRepo(db),
		Hasher:   cryptoutil.NewBcryptHasher(0),
	}
}

type seedAccount struct {
	Email string
	Notes []model.CreateNoteRequest
}

func defaultAccounts() []seedAccount {
	return []seedAccount{
		{
			Email: "alice@example.com",
			Notes: []model.CreateNoteRequest{
				{Title: "Weekly plan", Content: ptr("Review notes API, ship the CLI."), Category: ptr("work")},
				{Title: "Reading list", Content: ptr("Designing Data-Intensive Applications"), IsPublic: ptr(true), Category: ptr("books")},
				{Title: "Groceries", Content: ptr("oat milk, coffee, lemons")},
			},
		},
		{
			Email: "bob@example.com",
			Notes: []model.CreateNoteRequest{
				{Title: "Team offsite", Content: ptr("Venue shortlist and dates."), IsPublic: ptr(true), Category: ptr("work")},
				{Title: "Ideas", Category: ptr("personal")},
			},
		},
	}
}

// Run seeds the demo accounts and their notes. Accounts that already exist
// are left alone, as are the notes of any account that already has notes.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	hash, err := svcs.Hasher.Hash(DefaultPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	failures := 0
	for _, sa := range defaultAccounts() {
		acct, created, err := ensureAccount(ctx, svcs.Accounts, sa.Email, hash)
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed account", "email", sa.Email, "error", err)
			failures++
			continue
		}
		logger.InfoContext(ctx, "seed account ready", "email", sa.Email, "created", created)
		failures += seedNotes(ctx, svcs.Notes, acct, sa.Notes, logger)
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func ensureAccount(ctx context.Context, repo core.AccountRepository, email, hash string) (*model.Account, bool, error) {
	acct, err := repo.GetByEmail(ctx, email)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, data.ErrAccountNotFound) {
		return nil, false, err
	}
	acct, err = repo.Create(ctx, core.CreateAccountParams{
		Email:        email,
		PasswordHash: hash,
		Provider:     model.ProviderPassword,
		Confirmed:    true,
	})
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

func seedNotes(
	ctx context.Context,
	repo core.NoteRepository,
	acct *model.Account,
	notes []model.CreateNoteRequest,
	logger *slog.Logger,
) int {
	existing, err := repo.List(ctx, model.NotesListOptions{Viewer: acct.ID, View: model.ViewMine, Limit: 1})
	if err != nil {
		logger.ErrorContext(ctx, "failed to check existing notes", "email", acct.Email, "error", err)
		return 1
	}
	if len(existing) > 0 {
		logger.InfoContext(ctx, "notes already seeded", "email", acct.Email)
		return 0
	}

	failures := 0
	for i := range notes {
		req := notes[i]
		req.Normalize()
		if _, err := repo.Create(ctx, acct.ID, &req); err != nil {
			logger.ErrorContext(ctx, "failed to seed note", "email", acct.Email, "title", req.Title, "error", err)
			failures++
		}
	}
	return failures
}

func ptr[T any](v T) *T { return &v }
