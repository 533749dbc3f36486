package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityInfo     = "info"
	SeveritySuccess  = "success"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Notice is a short user- or operator-facing message.
type Notice struct {
	Title       string
	Description string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination capable of consuming notices. Sinks are
// fire-and-forget from the caller's point of view: errors are logged, not acted on.
type Sink interface {
	Notify(ctx context.Context, n Notice) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, n Notice) error

// Notify implements the Sink interface.
func (f SinkFunc) Notify(ctx context.Context, n Notice) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// Fanout delivers a notice to every sink and joins their errors.
type Fanout []Sink

// Notify implements the Sink interface.
func (f Fanout) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notices to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements the Sink interface.
func (s LogSink) Notify(ctx context.Context, n Notice) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityCritical:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Title, "description", n.Description, "severity", n.Severity)
	return nil
}

// Send delivers n to sink, stamping OccurredAt, and logs a delivery failure.
// A nil sink is a no-op.
func Send(ctx context.Context, sink Sink, logger *slog.Logger, n Notice) {
	if sink == nil {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if err := sink.Notify(ctx, n); err != nil && logger != nil {
		logger.WarnContext(ctx, "notice delivery failed", "title", n.Title, "error", err)
	}
}
