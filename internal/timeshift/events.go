package timeshift

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Event is one message in the ordering a recorder guarantees for its own
// emitted events: Started ≺ RecordStarted* ≺ (RecordEnded,RecordStarted)* ≺
// RecordEnded ≺ Stopped.
type Event interface {
	Recorder() string
}

type baseEvent struct{ recorder string }

func (e baseEvent) Recorder() string { return e.recorder }

// StartedEvent fires when a recorder's tuner session yields its first
// chunk.
type StartedEvent struct {
	baseEvent
}

// StoppedEvent fires once a recorder has fully drained and returned to
// Stopped.
type StoppedEvent struct {
	baseEvent
}

// RecordStartedEvent fires when a new record is opened.
type RecordStartedEvent struct {
	baseEvent
	RecordID models.TimeshiftRecordId
}

// RecordEndedEvent fires when a record is closed.
type RecordEndedEvent struct {
	baseEvent
	RecordID models.TimeshiftRecordId
}

func newStarted(recorder string) StartedEvent { return StartedEvent{baseEvent{recorder}} }
func newStopped(recorder string) StoppedEvent { return StoppedEvent{baseEvent{recorder}} }
func newRecordStarted(recorder string, id models.TimeshiftRecordId) RecordStartedEvent {
	return RecordStartedEvent{baseEvent{recorder}, id}
}
func newRecordEnded(recorder string, id models.TimeshiftRecordId) RecordEndedEvent {
	return RecordEndedEvent{baseEvent{recorder}, id}
}

// Emitter receives timeshift events. Manager fans every event out to its
// registered emitters (RegisterEmitter/UnregisterEmitter).
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(ev Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// EmitterRegistry tracks registered emitters under opaque uuid handles.
type EmitterRegistry struct {
	mu       sync.Mutex
	emitters map[uuid.UUID]Emitter
}

// NewEmitterRegistry creates an empty registry.
func NewEmitterRegistry() *EmitterRegistry {
	return &EmitterRegistry{emitters: make(map[uuid.UUID]Emitter)}
}

// Register adds e to the registry and returns its unregistration id.
func (r *EmitterRegistry) Register(e Emitter) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.emitters[id] = e
	return id
}

// Unregister removes the emitter registered under id, if any.
func (r *EmitterRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.emitters, id)
}

// EmitAll delivers ev to every registered emitter.
func (r *EmitterRegistry) EmitAll(ev Event) {
	r.mu.Lock()
	snapshot := make([]Emitter, 0, len(r.emitters))
	for _, e := range r.emitters {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		e.Emit(ev)
	}
}
