package httpx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

// StreamEvents streams auth change events for the caller's session as server-sent
// events. Only events that concern the session are sent, and the stream ends
// after one that clears it.
// GET /auth/v1/events (authenticated).
func (h *AuthAPIHandlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		writeUnauthenticated(w, credNone)
		return
	}
	if h.Events == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotImplemented, ErrCode: "events_unavailable"})
		return
	}

	stream, err := h.Events.Subscribe(r.Context(), sess.UserID)
	if err != nil {
		RenderError(w, r, fmt.Errorf("subscribe auth events: %w", err), h.logger())
		return
	}
	defer stream.Close()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	send := func(write func() error) bool {
		if err := write(); err != nil {
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		return rc.Flush() == nil
	}
	if !send(func() error { _, err := bw.WriteString(": connected\n\n"); return err }) {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = sseHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	log := h.logger().With("session_id", sess.ID)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.Done:
			return
		case <-ticker.C:
			if !send(func() error { _, err := bw.WriteString(": ping\n\n"); return err }) {
				return
			}
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if !ev.Concerns(sess.ID, sess.UserID) {
				continue
			}
			if !send(func() error { return writeEvent(bw, ev) }) {
				log.DebugContext(r.Context(), "event stream closed by client")
				return
			}
			if ev.Kind.ClearsSession() {
				return
			}
		}
	}
}

// writeEvent writes ev as one SSE message. Tokens never leave the server on
// this channel; clients refresh through /auth/v1/token.
func writeEvent(w *bufio.Writer, ev domainauth.ChangeEvent) error {
	if ev.Session != nil {
		s := withoutTokens(*ev.Session)
		ev.Session = &s
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode auth event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
