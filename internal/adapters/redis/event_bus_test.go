package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewEventBus(client, EventBusOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := bus.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stream.Close()

	other, err := bus.Subscribe(ctx, "u2")
	require.NoError(t, err)
	defer other.Close()

	ev := domainauth.ChangeEvent{
		Kind:       domainauth.EventSignedOut,
		SessionID:  "s1",
		UserID:     "u1",
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, bus.Publish(ctx, ev))

	select {
	case got := <-stream.Events():
		assert.Equal(t, ev.Kind, got.Kind)
		assert.Equal(t, ev.SessionID, got.SessionID)
		assert.True(t, ev.OccurredAt.Equal(got.OccurredAt))
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	select {
	case got := <-other.Events():
		t.Fatalf("unexpected event for another user: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBus_CloseEndsStream(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewEventBus(client, EventBusOptions{Buffer: 1})
	stream, err := bus.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel not closed")
	}
}

func TestEventBus_RejectsEmptyUser(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewEventBus(client, EventBusOptions{})
	require.Error(t, bus.Publish(context.Background(), domainauth.ChangeEvent{Kind: domainauth.EventSignedIn}))
	_, err := bus.Subscribe(context.Background(), "")
	require.Error(t, err)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notekeeper:auth:u1", Channel("u1"))
}
