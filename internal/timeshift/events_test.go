package timeshift

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterRegistryEmitAll(t *testing.T) {
	reg := NewEmitterRegistry()

	var mu sync.Mutex
	var received []Event
	id := reg.Register(EmitterFunc(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	}))
	require.NotEmpty(t, id.String())

	reg.EmitAll(newStarted("svc"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "svc", received[0].Recorder())
}

func TestEmitterRegistryUnregisterStopsDelivery(t *testing.T) {
	reg := NewEmitterRegistry()

	count := 0
	id := reg.Register(EmitterFunc(func(ev Event) { count++ }))
	reg.Unregister(id)
	reg.EmitAll(newStarted("svc"))

	assert.Equal(t, 0, count)
}
