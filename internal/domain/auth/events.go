package auth

import (
	"fmt"
	"strings"
	"time"
)

// EventKind names an auth state change.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserDeleted    EventKind = "USER_DELETED"
)

// ParseEventKind validates a wire value.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case EventInitialSession, EventSignedIn, EventSignedOut, EventTokenRefreshed, EventUserDeleted:
		return k, nil
	default:
		return "", fmt.Errorf("unknown auth event kind %q", s)
	}
}

// ClearsSession reports whether the event means the session is gone.
func (k EventKind) ClearsSession() bool {
	return k == EventSignedOut || k == EventUserDeleted
}

// ChangeEvent is delivered to auth change subscribers. Session carries the
// replacement session, or nil when the event clears it.
type ChangeEvent struct {
	Kind       EventKind `json:"kind"`
	Session    *Session  `json:"session,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Concerns reports whether the event applies to the given session. Account-wide
// events (user deletion) apply to every session of the user.
func (e ChangeEvent) Concerns(sessionID, userID string) bool {
	if e.Kind == EventUserDeleted {
		return e.UserID != "" && e.UserID == userID
	}
	return e.SessionID != "" && e.SessionID == sessionID
}
