package auth

import (
	"context"
	"sync"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

// Stream is a buffered in-memory ports.AuthEventStream.
type Stream struct {
	mu     sync.Mutex
	ch     chan domainauth.ChangeEvent
	closed bool
}

// NewStream returns an open stream with the given buffer.
func NewStream(buffer int) *Stream {
	return &Stream{ch: make(chan domainauth.ChangeEvent, buffer)}
}

func (s *Stream) Events() <-chan domainauth.ChangeEvent { return s.ch }

// Close is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send delivers ev unless the stream is closed or its buffer is full.
func (s *Stream) Send(ev domainauth.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// MemoryEventBus is an in-process ports.AuthEventBus.
type MemoryEventBus struct {
	mu        sync.Mutex
	subs      map[string][]*Stream
	Published []domainauth.ChangeEvent
}

// NewMemoryEventBus creates an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: make(map[string][]*Stream)}
}

func (b *MemoryEventBus) Publish(_ context.Context, ev domainauth.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Published = append(b.Published, ev)
	for _, s := range b.subs[ev.UserID] {
		s.Send(ev)
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(_ context.Context, userID string) (ports.AuthEventStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := NewStream(16)
	b.subs[userID] = append(b.subs[userID], s)
	return s, nil
}

// Kinds returns the kinds of published events in order.
func (b *MemoryEventBus) Kinds() []domainauth.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domainauth.EventKind, 0, len(b.Published))
	for _, ev := range b.Published {
		out = append(out, ev.Kind)
	}
	return out
}
