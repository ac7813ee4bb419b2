package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
)

// Event is one streaming step's worth of raw actions. Each event carries only
// actions not seen in earlier events of the same turn. Final marks the closing
// batch of a turn and may carry no actions at all.
type Event struct {
	Actions []action.RawAction
	Final   bool
}

// Provider adapts one model API behind a uniform batch-stream contract.
// Implementations close both channels when the stream ends; at most one error
// is delivered.
type Provider interface {
	Name() string
	Stream(ctx context.Context, parts *promptctx.Parts) (<-chan Event, <-chan error)
}

// ErrPromptTooLong is the sentinel for the oversized-prompt condition. It
// triggers prompt shrinking, never a retry.
var ErrPromptTooLong = errors.New("prompt too long")

// Class buckets provider errors for the session's failure policy.
type Class int

const (
	// ClassRetryable errors are transient; retried with exponential backoff.
	ClassRetryable Class = iota
	// ClassPromptTooLong triggers the prompt-shrinking ladder.
	ClassPromptTooLong
	// ClassFatal errors propagate and terminate the session.
	ClassFatal
)

// Classify maps a provider error onto the failure policy. Vendor SDKs encode
// these conditions as free-form messages, so matching is substring-based.
func Classify(err error) Class {
	if err == nil {
		return ClassRetryable
	}
	if errors.Is(err, ErrPromptTooLong) {
		return ClassPromptTooLong
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "prompt is too long"),
		strings.Contains(msg, "context_length_exceeded"),
		strings.Contains(msg, "maximum context length"):
		return ClassPromptTooLong
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"):
		return ClassRetryable
	}
	return ClassFatal
}
