package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	ErrNoteNotFound    = errors.New("note not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailExists     = errors.New("account email already exists")
)

// isMissing reports whether err means the row does not exist. Malformed UUIDs
// cannot match any row, so they count too.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}
