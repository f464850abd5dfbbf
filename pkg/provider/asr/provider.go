// Package asr defines the Client interface for remote speech-recognition
// backends.
//
// An ASR client wraps a batch transcription service (e.g., a whisper-server
// or faster-whisper HTTP endpoint) and exposes a single-shot interface: one
// sealed audio segment in, recognised text out. Clients do not retry —
// retry policy belongs to the pipeline coordinator, which knows the
// segment's sequence position and whether a retry is still useful.
//
// Implementations must be safe for concurrent use; the coordinator issues
// calls for several in-flight segments simultaneously.
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/sorane/livetl/pkg/types"
)

// ErrorKind classifies recognition failures so the coordinator can decide
// whether a retry is worthwhile.
type ErrorKind int

const (
	// Unreachable means the endpoint could not be contacted at all
	// (DNS failure, connection refused, TLS error).
	Unreachable ErrorKind = iota

	// Timeout means the call exceeded its deadline.
	Timeout

	// ServerError means the endpoint answered with a non-2xx status.
	ServerError

	// EmptyResult means the endpoint answered 2xx but produced no
	// transcript text.
	EmptyResult
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
	case EmptyResult:
		return "empty_result"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by ASR clients. Use [errors.As] to
// extract it and inspect Kind.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Status is the HTTP status code when Kind is ServerError, else 0.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case ServerError:
		return fmt.Sprintf("asr: server returned HTTP %d", e.Status)
	case EmptyResult:
		return "asr: empty transcript"
	default:
		if e.Err != nil {
			return fmt.Sprintf("asr: %s: %v", e.Kind, e.Err)
		}
		return "asr: " + e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err and true when err is (or wraps) an
// [*Error]; otherwise it returns 0 and false.
func KindOf(err error) (ErrorKind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// Client is the abstraction over any speech-recognition backend.
type Client interface {
	// Transcribe sends one complete audio segment to the backend and
	// returns the recognised text. The call is bounded by the client's
	// configured timeout; ctx cancellation aborts it early.
	//
	// Failures are reported as an [*Error]. Transcribe never retries.
	Transcribe(ctx context.Context, seg *types.Segment) (types.RecognitionResult, error)
}
