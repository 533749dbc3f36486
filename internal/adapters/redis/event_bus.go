package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

const authChannelPrefix = "notekeeper:auth:"

// EventBus publishes auth change events over Redis Pub/Sub, one channel per user.
type EventBus struct {
	client redis.UniversalClient
	logger *slog.Logger
	buffer int
}

// EventBusOptions configures NewEventBus.
type EventBusOptions struct {
	Logger *slog.Logger
	Buffer int // per-subscriber channel size
}

// NewEventBus creates an EventBus.
func NewEventBus(client redis.UniversalClient, opts EventBusOptions) *EventBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	return &EventBus{client: client, logger: logger.With("component", "auth_event_bus"), buffer: buffer}
}

// Channel returns the Pub/Sub channel for userID.
func Channel(userID string) string { return authChannelPrefix + userID }

// Publish sends ev to subscribers of ev.UserID.
func (b *EventBus) Publish(ctx context.Context, ev domainauth.ChangeEvent) error {
	if ev.UserID == "" {
		return errors.New("event user ID cannot be empty")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.UserID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns a stream of events for userID. The subscription is active
// when Subscribe returns.
func (b *EventBus) Subscribe(ctx context.Context, userID string) (ports.AuthEventStream, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	ps := b.client.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &eventStream{ps: ps, ch: make(chan domainauth.ChangeEvent, b.buffer), done: make(chan struct{})}
	go s.pump(ps.Channel(), b.logger)
	return s, nil
}

type eventStream struct {
	ps   *redis.PubSub
	ch   chan domainauth.ChangeEvent
	done chan struct{}
	once sync.Once
}

func (s *eventStream) Events() <-chan domainauth.ChangeEvent { return s.ch }

func (s *eventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *eventStream) pump(msgs <-chan *redis.Message, logger *slog.Logger) {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev domainauth.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("dropping malformed auth event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}
