package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/target/notekeeper/internal/core"
	"github.com/target/notekeeper/internal/data/pgxutil"
	"github.com/target/notekeeper/internal/domain/model"
)

// AccountRepo provides database operations for user accounts.
type AccountRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAccountRepo creates a new AccountRepo with the real time provider.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewAccountRepoWithTimeProvider creates an AccountRepo with a custom time provider.
func NewAccountRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AccountRepo {
	return &AccountRepo{DB: db, timeProvider: tp}
}

// Create inserts an account. A duplicate email (case-insensitive) yields ErrEmailExists.
func (r *AccountRepo) Create(ctx context.Context, params core.CreateAccountParams) (*model.Account, error) {
	provider := params.Provider
	if provider == "" {
		provider = model.ProviderPassword
	}
	now := r.timeProvider.Now().UTC()
	acct, err := r.queryOne(ctx, accountInsertQuery,
		model.NormalizeEmail(params.Email), params.PasswordHash, provider, params.Confirmed, now)
	if err != nil {
		return nil, r.mapWriteErr(err)
	}
	return acct, nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	acct, err := r.queryOne(ctx, accountSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, r.mapReadErr(err, "failed to get account by ID")
	}
	return acct, nil
}

// GetByEmail retrieves an account by email, ignoring case.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	acct, err := r.queryOne(ctx, accountSelect+` WHERE lower(email) = $1`, model.NormalizeEmail(email))
	if err != nil {
		return nil, r.mapReadErr(err, "failed to get account by email")
	}
	return acct, nil
}

// UpsertFederated returns the account linked to the external subject, linking
// or creating one by email when none is linked yet. Federated accounts are
// confirmed by their provider.
func (r *AccountRepo) UpsertFederated(
	ctx context.Context,
	req model.UpsertFederatedAccountRequest,
) (*model.Account, error) {
	req.Email = model.NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out model.Account
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		now := r.timeProvider.Now().UTC()
		rows, err := tx.Query(ctx, `
			UPDATE users SET email = $1, confirmed = TRUE, updated_at = $3
			WHERE provider = 'oidc' AND subject = $2
			RETURNING `+accountReturning, req.Email, req.Subject, now)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Account])
		if err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		rows, err = tx.Query(ctx, `
			INSERT INTO users (email, password_hash, provider, subject, confirmed, created_at, updated_at)
			VALUES ($1, '', 'oidc', $2, TRUE, $3, $3)
			ON CONFLICT ((lower(email))) DO UPDATE
				SET provider = 'oidc', subject = EXCLUDED.subject, confirmed = TRUE, updated_at = EXCLUDED.updated_at
			RETURNING `+accountReturning, req.Email, req.Subject, now)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Account])
		return err
	}})
	if err != nil {
		return nil, r.mapWriteErr(err)
	}
	return &out, nil
}

// Confirm marks an account confirmed. It reports whether the account exists.
func (r *AccountRepo) Confirm(ctx context.Context, id string) (bool, error) {
	return r.exec(ctx, `UPDATE users SET confirmed = TRUE, updated_at = $2 WHERE id = $1`,
		id, r.timeProvider.Now().UTC())
}

// Delete deletes an account and, by cascade, its notes.
func (r *AccountRepo) Delete(ctx context.Context, id string) (bool, error) {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// List retrieves accounts with pagination, oldest first.
func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 50
	}
	offset = max(offset, 0)

	var rowsOut []model.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, accountSelect+` ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Account])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	res := make([]*model.Account, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// --- helpers ---

const (
	accountReturning = `id, email, password_hash, provider, subject, confirmed, created_at, updated_at`

	accountSelect = `SELECT ` + accountReturning + ` FROM users`

	accountInsertQuery = `
		INSERT INTO users (email, password_hash, provider, confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + accountReturning
)

func (r *AccountRepo) queryOne(ctx context.Context, q string, args ...any) (*model.Account, error) {
	var out model.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Account])
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountRepo) exec(ctx context.Context, q string, args ...any) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, q, args...)
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
		return false, fmt.Errorf("account write: %w", err)
	}
	return affected > 0, nil
}

func (r *AccountRepo) mapReadErr(err error, msg string) error {
	if isMissing(err) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (r *AccountRepo) mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrEmailExists
	}
	return err
}
