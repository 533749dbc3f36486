//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FirstFieldError extracts the first (alphabetical) failing field from a
// validation error. ok is false for errors that are not field validation errors.
func FirstFieldError(err error) (field, message string, ok bool) {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "", "", false
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], errs[keys[0]].Error(), true
}
