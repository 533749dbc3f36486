package auth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeRoundTrip(t *testing.T) {
	wrapped := fmt.Errorf("sign in: %w", ErrTooManyAttempts)
	code := ErrorCode(wrapped)
	assert.Equal(t, "too_many_attempts", code)
	assert.ErrorIs(t, ErrorFromCode(code), ErrTooManyAttempts)

	assert.Empty(t, ErrorCode(fmt.Errorf("other")))
	assert.NoError(t, ErrorFromCode("nope"))
}
