package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

const maxEventLine = 1 << 20

// StreamEvents opens the auth event stream for token and calls fn for every
// event until ctx ends or the server closes the stream.
func (c *Client) StreamEvents(ctx context.Context, token string, fn func(domainauth.ChangeEvent)) error {
	req, err := c.newRequest(ctx, request{method: http.MethodGet, path: "/auth/v1/events", token: token})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return readEvents(resp.Body, fn)
}

// readEvents parses a text/event-stream body. Only the data field is used;
// comments and unknown fields are skipped.
func readEvents(r io.Reader, fn func(domainauth.ChangeEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventLine)

	var data strings.Builder
	dispatch := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		var ev domainauth.ChangeEvent
		if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
			return fmt.Errorf("decode auth event: %w", err)
		}
		kind, err := domainauth.ParseEventKind(string(ev.Kind))
		if err != nil {
			return err
		}
		ev.Kind = kind
		fn(ev)
		return nil
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return dispatch()
}

// eventStream is a ports.AuthEventStream fed by AuthBackend.
type eventStream struct {
	ch     chan domainauth.ChangeEvent
	mu     sync.Mutex
	closed bool
	onDone func(*eventStream)
}

func newEventStream(buffer int, onDone func(*eventStream)) *eventStream {
	return &eventStream{ch: make(chan domainauth.ChangeEvent, buffer), onDone: onDone}
}

func (s *eventStream) Events() <-chan domainauth.ChangeEvent { return s.ch }

// Close stops delivery. It is safe to call more than once.
func (s *eventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	if s.onDone != nil {
		s.onDone(s)
	}
	return nil
}

// offer delivers ev without blocking; it reports false when the stream is
// closed or full.
func (s *eventStream) offer(ev domainauth.ChangeEvent) bool {
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
