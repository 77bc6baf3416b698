package models

import (
	"encoding/json"
	"time"
)

// TimeshiftRecorderState is the lifecycle state of one recorder.
type TimeshiftRecorderState int

const (
	// RecorderStopped means no recording is in progress and no tuner
	// session is held.
	RecorderStopped TimeshiftRecorderState = iota
	// RecorderStarting means a tuner session has been requested but no
	// chunk has arrived yet.
	RecorderStarting
	// RecorderStarted means chunks are arriving and being written to the
	// ring.
	RecorderStarted
	// RecorderStopping means the session is being torn down and the
	// final record is being closed out.
	RecorderStopping
)

// String implements fmt.Stringer.
func (s TimeshiftRecorderState) String() string {
	switch s {
	case RecorderStopped:
		return "stopped"
	case RecorderStarting:
		return "starting"
	case RecorderStarted:
		return "started"
	case RecorderStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TimeshiftRecordId is a monotonic, per-recorder record identifier. Ids are
// strictly increasing in insertion order within one recorder; they are not
// unique across recorders.
type TimeshiftRecordId uint32

// TimeshiftRecord describes one program-boundary slice of a recorder's ring.
// Positions are absolute byte counts since the ring was created and are not
// reduced modulo the ring size; the on-disk offset of a position is the
// position modulo the ring size. At most one record per
// recorder has Recording == true, and it is always the most recently
// opened one.
type TimeshiftRecord struct {
	ID        TimeshiftRecordId `json:"id"`
	Program   ProgramDescriptor `json:"program"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	StartPos  int64             `json:"startPos"`
	EndPos    int64             `json:"endPos"`
	Recording bool              `json:"recording"`
}

// timeshiftRecordWire is the on-disk/wire JSON shape: startTime/endTime as
// milliseconds since epoch rather than RFC3339.
type timeshiftRecordWire struct {
	ID        TimeshiftRecordId `json:"id"`
	Program   ProgramDescriptor `json:"program"`
	StartTime int64             `json:"startTime"`
	EndTime   int64             `json:"endTime"`
	StartPos  int64             `json:"startPos"`
	EndPos    int64             `json:"endPos"`
	Recording bool              `json:"recording"`
}

// MarshalJSON renders StartTime/EndTime as milliseconds since epoch,
// matching the on-disk sidecar wire format.
func (r TimeshiftRecord) MarshalJSON() ([]byte, error) {
	w := timeshiftRecordWire{
		ID:        r.ID,
		Program:   r.Program,
		StartTime: r.StartTime.UnixMilli(),
		StartPos:  r.StartPos,
		EndPos:    r.EndPos,
		Recording: r.Recording,
	}
	if !r.EndTime.IsZero() {
		w.EndTime = r.EndTime.UnixMilli()
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the millisecond-epoch sidecar wire format.
func (r *TimeshiftRecord) UnmarshalJSON(data []byte) error {
	var w timeshiftRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Program = w.Program
	r.StartTime = time.UnixMilli(w.StartTime).UTC()
	if w.EndTime != 0 {
		r.EndTime = time.UnixMilli(w.EndTime).UTC()
	}
	r.StartPos = w.StartPos
	r.EndPos = w.EndPos
	r.Recording = w.Recording
	return nil
}

// CurrentPoint tracks the writer's live position in the ring.
type CurrentPoint struct {
	Pos       int64     `json:"pos"`
	Timestamp time.Time `json:"-"`
}

// currentPointWire mirrors CurrentPoint but stores Timestamp as
// milliseconds since epoch for the sidecar.
type currentPointWire struct {
	Pos       int64 `json:"pos"`
	Timestamp int64 `json:"timestamp"`
}

// MarshalJSON implements the millisecond-epoch wire format.
func (p CurrentPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(currentPointWire{
		Pos:       p.Pos,
		Timestamp: p.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON implements the millisecond-epoch wire format.
func (p *CurrentPoint) UnmarshalJSON(data []byte) error {
	var w currentPointWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Pos = w.Pos
	p.Timestamp = time.UnixMilli(w.Timestamp).UTC()
	return nil
}
