package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// "Key (email)=(ann@example.com) already exists."
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// tableNouns maps tables to the noun used in client messages.
var tableNouns = map[string]string{ //nolint:gochecknoglobals // immutable lookup table
	"users": "account",
	"notes": "note",
}

// MapDBError translates pgx and context errors into AppErrors. Unrecognised
// errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		e := Wrap(pgErr, ErrCodeConflict, "This value already exists. Please choose a different one.")
		e.Field = conflictField(pgErr)
		if e.Field == "email" {
			e.Message = "An account with this email already exists."
		}
		return e
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, foreignKeyMessage(pgErr))
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.StringDataRightTruncationDataException:
		e := Wrap(pgErr, ErrCodeValidation, "Invalid data. Please check your input.")
		if pgErr.ColumnName != "" {
			e.Field = pgErr.ColumnName
			e.Message = "This field has an invalid value."
		}
		return e
	case pgerrcode.InvalidTextRepresentation:
		return Wrap(pgErr, ErrCodeNotFound, "Resource not found")
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

func conflictField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		// lower(email) style expression keys
		field := strings.TrimSuffix(strings.TrimPrefix(m[1], "lower("), ")")
		return field
	}
	// "users_email_key" -> "email"
	parts := strings.Split(pgErr.ConstraintName, "_")
	if len(parts) == 3 {
		return parts[1]
	}
	return ""
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	noun := "item"
	if n, ok := tableNouns[strings.ToLower(pgErr.TableName)]; ok {
		noun = n
	}
	if strings.Contains(pgErr.Detail, "is not present in table") {
		return "Cannot complete operation because the referenced " + noun + " does not exist."
	}
	return "Cannot complete operation because this " + noun + " is in use."
}
