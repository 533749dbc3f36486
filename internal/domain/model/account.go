//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxEmailLen    = 254
)

// AccountProvider records how an account authenticates.
type AccountProvider string

const (
	ProviderPassword AccountProvider = "password"
	ProviderOIDC     AccountProvider = "oidc"
)

// Account is a user account. PasswordHash is empty for federated accounts.
type Account struct {
	ID           string          `json:"id"         db:"id"`
	Email        string          `json:"email"      db:"email"`
	PasswordHash string          `json:"-"          db:"password_hash"`
	Provider     AccountProvider `json:"provider"   db:"provider"`
	Subject      *string         `json:"-"          db:"subject"`
	Confirmed    bool            `json:"confirmed"  db:"confirmed"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccountRequest carries sign-up input.
type CreateAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates CreateAccountRequest. Email is expected to be normalized.
func (r CreateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLen), is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, maxPasswordLen)),
	)
}

// UpsertFederatedAccountRequest links an external identity to an account.
type UpsertFederatedAccountRequest struct {
	Email   string
	Subject string
}

// Validate validates UpsertFederatedAccountRequest.
func (r UpsertFederatedAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Subject, validation.Required),
	)
}
