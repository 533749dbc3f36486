package metrics

import (
	"time"

	obserrors "github.com/target/notekeeper/internal/observability/errors"
	"github.com/target/notekeeper/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// AuthOperation captures one backend auth call (sign-in, sign-up, sign-out, refresh).
type AuthOperation struct {
	Operation string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitAuthOperation emits standardised auth operation metrics.
func EmitAuthOperation(sink statsd.Sink, in AuthOperation) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.operation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.operation.duration", in.Duration, CloneTags(tags))
	}
}

// PhaseTransition captures an auth state machine phase change.
type PhaseTransition struct {
	From    string
	To      string
	Trigger string
}

// EmitPhaseTransition counts a phase change of the client auth state machine.
func EmitPhaseTransition(sink statsd.Sink, in PhaseTransition) {
	if sink == nil {
		return
	}
	sink.Count("auth.phase.transition", 1, map[string]string{
		"from":    in.From,
		"to":      in.To,
		"trigger": in.Trigger,
	})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
