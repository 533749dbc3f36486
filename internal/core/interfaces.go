package core

import (
	"context"

	"github.com/target/notekeeper/internal/domain/model"
)

// Repository ports. Services depend on these; internal/data implements them.

// NoteRepository defines the interface for note data operations.
type NoteRepository interface {
	Create(ctx context.Context, owner string, req *model.CreateNoteRequest) (*model.Note, error)
	GetByID(ctx context.Context, id string) (*model.Note, error)
	List(ctx context.Context, opts model.NotesListOptions) ([]*model.Note, error)
	Update(ctx context.Context, id string, req model.UpdateNoteRequest) (*model.Note, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CreateAccountParams groups the inputs for AccountRepository.Create.
type CreateAccountParams struct {
	Email        string
	PasswordHash string
	Provider     model.AccountProvider
	Confirmed    bool
}

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	Create(ctx context.Context, params CreateAccountParams) (*model.Account, error)
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	UpsertFederated(ctx context.Context, req model.UpsertFederatedAccountRequest) (*model.Account, error)
	Confirm(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*model.Account, error)
}
