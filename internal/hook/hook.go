// Package hook implements the wire contract for the hook-script feature:
// line-oriented JSON written to a spawned script's stdin. Nothing in
// this repository spawns the script itself — this package exists so the
// message envelopes the timeshift recorder's RecordStarted/RecordEnded
// events would feed to such a script have a concrete, testable
// serialization target.
package hook

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/sanshiro-tv/tunerd/internal/models"
)

// MirakurunServiceId is the wire id written for epg.programs-updated.
type MirakurunServiceId = models.MirakurunServiceId

// MirakurunProgramId is the wire id written for
// recording.started/stopped/failed.
type MirakurunProgramId = models.MirakurunProgramId

// RecordingFailedReasonKind tags the RecordingFailedReason variant.
type RecordingFailedReasonKind string

const (
	ReasonIOError        RecordingFailedReasonKind = "ioError"
	ReasonPipelineError  RecordingFailedReasonKind = "pipelineError"
	ReasonRetryFailed    RecordingFailedReasonKind = "retryFailed"
)

// RecordingFailedReason is the second line written for recording.failed:
// a tagged variant with camelCase keys.
type RecordingFailedReason struct {
	Type     RecordingFailedReasonKind `json:"type"`
	Message  string                    `json:"message,omitempty"`
	OSError  *int                      `json:"osError,omitempty"`
	ExitCode *int                      `json:"exitCode,omitempty"`
}

// NewIOErrorReason builds a RecordingFailedReason for an I/O failure.
func NewIOErrorReason(message string, osError *int) RecordingFailedReason {
	return RecordingFailedReason{Type: ReasonIOError, Message: message, OSError: osError}
}

// NewPipelineErrorReason builds a RecordingFailedReason for a pipeline
// that exited non-zero.
func NewPipelineErrorReason(exitCode int) RecordingFailedReason {
	code := exitCode
	return RecordingFailedReason{Type: ReasonPipelineError, ExitCode: &code}
}

// NewRetryFailedReason builds a RecordingFailedReason for a recording that
// exhausted its retry budget.
func NewRetryFailedReason() RecordingFailedReason {
	return RecordingFailedReason{Type: ReasonRetryFailed}
}

// WriteLine JSON-encodes v and writes it to w followed by a single
// newline, matching script_runner.rs's write_line helper.
func WriteLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// EpgProgramsUpdatedEnvelope renders the single line written to an
// epg.programs-updated script's stdin.
func EpgProgramsUpdatedEnvelope(id MirakurunServiceId) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, id); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordingStartedEnvelope and RecordingStoppedEnvelope render the single
// line written for recording.started / recording.stopped.
func RecordingStartedEnvelope(id MirakurunProgramId) ([]byte, error) {
	return programLineEnvelope(id)
}

func RecordingStoppedEnvelope(id MirakurunProgramId) ([]byte, error) {
	return programLineEnvelope(id)
}

func programLineEnvelope(id MirakurunProgramId) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, id); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordingFailedEnvelope renders the two lines written for
// recording.failed: the program id, then the tagged reason.
func RecordingFailedEnvelope(id MirakurunProgramId, reason RecordingFailedReason) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, id); err != nil {
		return nil, err
	}
	if err := WriteLine(&buf, reason); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
