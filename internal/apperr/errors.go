// Package apperr centralizes the error-kind taxonomy shared across the
// tuner, broadcaster, timeshift, and filter packages so that HTTP handlers
// can map a single, stable set of sentinel errors to status codes.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Components return these directly, or wrap them with
// fmt.Errorf("...: %w", ErrX) when extra context is useful; callers should
// use errors.Is against these values, never string comparison.
var (
	// ErrStreamingTimedOut indicates no chunk arrived within the initial
	// read deadline (stream_time_limit from first read).
	ErrStreamingTimedOut = errors.New("streaming timed out")

	// ErrTunerUnavailable indicates no tuner could satisfy an admission
	// request (all rules of the admission algorithm were exhausted).
	ErrTunerUnavailable = errors.New("tuner unavailable")

	// ErrChannelNotFound indicates the requested channel does not exist
	// in configuration.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrServiceNotFound indicates the requested service id is unknown.
	ErrServiceNotFound = errors.New("service not found")

	// ErrProgramNotFound indicates the requested program id is unknown,
	// or an upstream yielded no content before timeout.
	ErrProgramNotFound = errors.New("program not found")

	// ErrRecordNotFound indicates the requested timeshift record id does
	// not exist in the recorder's index.
	ErrRecordNotFound = errors.New("record not found")

	// ErrSessionNotFound indicates a StopStreaming call referenced a
	// session id that no longer matches the tuner's active session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClockNotSynced indicates the system clock cannot be trusted to
	// timestamp a new record or event.
	ErrClockNotSynced = errors.New("clock not synced")

	// ErrOutOfRange indicates a requested ring byte range has been
	// overwritten (evicted) between open and read.
	ErrOutOfRange = errors.New("out of range")

	// ErrNoContent indicates a query matched nothing, but is not itself
	// an error condition worth 500-ing (maps to HTTP 204).
	ErrNoContent = errors.New("no content")

	// ErrAccessDenied indicates the remote peer failed the allow-list
	// check.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidFilter indicates a filter template failed to render.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrIoError wraps an underlying I/O failure (ring file, pipe).
	ErrIoError = errors.New("io error")

	// ErrSerialize indicates a JSON sidecar or wire payload could not be
	// encoded or decoded.
	ErrSerialize = errors.New("serialize error")

	// ErrOther is the catch-all for conditions not covered above.
	ErrOther = errors.New("other error")
)

// CommandReason distinguishes the three ways spawning a Command Pipeline can
// fail.
type CommandReason int

const (
	// UnableToParse indicates a command string failed POSIX shell-word
	// tokenization.
	UnableToParse CommandReason = iota
	// UnableToSpawn indicates exec.Cmd.Start returned an error.
	UnableToSpawn
	// PipelineBroken indicates inter-stage stdio could not be wired.
	PipelineBroken
)

// String implements fmt.Stringer.
func (r CommandReason) String() string {
	switch r {
	case UnableToParse:
		return "unable to parse"
	case UnableToSpawn:
		return "unable to spawn"
	case PipelineBroken:
		return "pipeline broken"
	default:
		return "unknown command failure"
	}
}

// CommandError reports a Command Pipeline failure, identifying which stage
// and why. It wraps ErrOther so that errors.Is(err, ErrOther) still matches,
// and keeps the underlying error (parse error, exec error) via Unwrap.
type CommandError struct {
	Command string
	Reason  CommandReason
	Err     error
}

// NewCommandError builds a CommandError for the given command text and
// reason, optionally wrapping an underlying cause.
func NewCommandError(command string, reason CommandReason, cause error) *CommandError {
	return &CommandError{Command: command, Reason: reason, Err: cause}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("command %q: %s", e.Command, e.Reason)
}

// Unwrap exposes the underlying cause, if any.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrOther so callers that only check the broad
// taxonomy still match CommandFailed variants without type-asserting.
func (e *CommandError) Is(target error) bool {
	return target == ErrOther
}
