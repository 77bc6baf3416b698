package stream

import (
	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
)

// stopStreamingSink is the subset of *tuner.Manager a StopStreamingTrigger
// needs, kept narrow so tests can fake it without building a real Manager.
type stopStreamingSink interface {
	StopStreaming(id models.TunerSubscriptionId)
}

// StopStreamingTrigger fires StopStreaming(id) at a tuner Manager when the
// owning consumer's stream is closed. This is the only drop-trigger this
// repository implements concretely; on-air program tracking is not built
// here, so no trigger implements that side effect — callers wanting it
// supply their own Trigger.
type StopStreamingTrigger struct {
	sink stopStreamingSink
	id   models.TunerSubscriptionId
}

// NewStopStreamingTrigger builds a trigger that calls
// manager.StopStreaming(id) on Fire.
func NewStopStreamingTrigger(manager *tuner.Manager, id models.TunerSubscriptionId) StopStreamingTrigger {
	return StopStreamingTrigger{sink: manager, id: id}
}

// Fire implements Trigger.
func (t StopStreamingTrigger) Fire() {
	if t.sink != nil {
		t.sink.StopStreaming(t.id)
	}
}
