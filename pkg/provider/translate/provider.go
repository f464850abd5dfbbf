// Package translate defines the Translator interface for remote
// text-translation backends.
//
// A translator wraps a chat-completion style LLM endpoint with a fixed
// source→target language instruction. Like the ASR clients, translators do
// not retry — retry policy belongs to the pipeline coordinator.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies translation failures.
type ErrorKind int

const (
	// Unreachable means the endpoint could not be contacted at all.
	Unreachable ErrorKind = iota

	// Timeout means the call exceeded its deadline.
	Timeout

	// ServerError means the endpoint answered with a non-2xx status.
	ServerError

	// MalformedResponse means the endpoint answered 2xx but the response
	// could not be interpreted (no choices, unparseable payload).
	MalformedResponse
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Timeout:
		return "timeout"
	case ServerError:
		return "server_error"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by translators. Use [errors.As] to
// extract it and inspect Kind.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status when Kind is ServerError, else 0
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case ServerError:
		return fmt.Sprintf("translate: server returned HTTP %d", e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("translate: %s: %v", e.Kind, e.Err)
		}
		return "translate: " + e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err and true when err is (or wraps) an
// [*Error]; otherwise it returns 0 and false.
func KindOf(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// Translator is the abstraction over any translation backend.
type Translator interface {
	// Translate sends text to the backend and returns the translated line.
	// An empty or unchanged result is returned as-is rather than treated as
	// an error — degraded-but-visible output beats a silently dropped line.
	//
	// Failures are reported as an [*Error]. Translate never retries.
	Translate(ctx context.Context, text string) (string, error)
}
