package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	assert.True(t, IsAnonymous(ctx))
	assert.Empty(t, ViewerID(ctx))
	assert.Nil(t, GetSessionFromContext(ctx))

	assert.Equal(t, ctx, SetSessionInContext(ctx, nil), "nil sessions leave the context untouched")

	sess := &domainauth.Session{ID: "s1", UserID: "u1"}
	ctx = SetSessionInContext(ctx, sess)
	got, ok := GetUserSessionFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, sess, got)
	assert.False(t, IsAnonymous(ctx))
	assert.Equal(t, "u1", ViewerID(ctx))
}
