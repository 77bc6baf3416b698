package timeshift

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
)

func newTestTunerManager(t *testing.T, command string) *tuner.Manager {
	t.Helper()
	tn := tuner.New(tuner.Config{
		Index:           0,
		Name:            "t0",
		ChannelTypes:    []models.ChannelType{models.ChannelTypeGR},
		CommandTemplate: command,
		TimeLimit:       5 * time.Second,
	}, nil)
	return tuner.NewManager([]*tuner.Tuner{tn}, nil)
}

func TestRecorderLifecycleRecordsAndStops(t *testing.T) {
	dir := t.TempDir()
	base := BasePath(dir, "news")

	mgr := newTestTunerManager(t, `sh -c "dd if=/dev/zero bs=188 count=5 2>/dev/null"`)

	var events []Event
	rec, err := NewRecorder(RecorderConfig{
		Name:        "news",
		ServiceID:   1,
		ChannelType: models.ChannelTypeGR,
		Channel:     "27",
		RingSize:    4096,
		RecordPath:  base,
		TSFile:      RingPath(base),
	}, mgr, func(ev Event) { events = append(events, ev) }, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	require.NoError(t, rec.Start(context.Background()))

	require.Eventually(t, func() bool {
		return rec.State() == models.RecorderStopped
	}, 5*time.Second, 10*time.Millisecond, "recorder should drain back to Stopped once the child exits")

	records, err := rec.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].StartPos)
	assert.Equal(t, int64(5*188), records[0].EndPos)
	assert.False(t, records[0].Recording)

	data, err := os.ReadFile(RingPath(base))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), int64(len(data)))

	_, err = os.Stat(SidecarPath(base))
	require.NoError(t, err)
}

func TestRecorderHealthCheckHealthyWhileRunning(t *testing.T) {
	dir := t.TempDir()
	base := BasePath(dir, "news")

	mgr := newTestTunerManager(t, `sh -c "sleep 30"`)

	rec, err := NewRecorder(RecorderConfig{
		Name:        "news",
		ServiceID:   1,
		ChannelType: models.ChannelTypeGR,
		Channel:     "27",
		RingSize:    4096,
		RecordPath:  base,
		TSFile:      RingPath(base),
	}, mgr, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	require.NoError(t, rec.Start(context.Background()))
	require.Eventually(t, func() bool {
		return rec.State() == models.RecorderStarting
	}, time.Second, 5*time.Millisecond)

	// A recorder that is Starting/Started but alive has no lastErr, so
	// HealthCheck reports healthy until the loop actually dies.
	assert.NoError(t, rec.HealthCheck())
}

func newTestManagerWithRecorder(t *testing.T, command string) *Manager {
	t.Helper()
	dir := t.TempDir()
	tunerMgr := newTestTunerManager(t, command)
	mgr := NewManager(tunerMgr, nil)
	require.NoError(t, mgr.AddRecorder(RecorderConfig{
		Name:        "news",
		ServiceID:   1,
		ChannelType: models.ChannelTypeGR,
		Channel:     "27",
		RingSize:    4096,
		RecordPath:  BasePath(dir, "news"),
		TSFile:      RingPath(BasePath(dir, "news")),
	}))
	return mgr
}

func TestManagerQueryByNameAndIndex(t *testing.T) {
	mgr := newTestManagerWithRecorder(t, `sh -c "dd if=/dev/zero bs=188 count=1 2>/dev/null"`)
	t.Cleanup(mgr.Stop)

	byName, err := mgr.QueryRecorder(RecorderQuery{Name: "news"})
	require.NoError(t, err)

	idx := 0
	byIndex, err := mgr.QueryRecorder(RecorderQuery{Index: &idx})
	require.NoError(t, err)
	assert.Same(t, byName, byIndex)

	_, err = mgr.QueryRecorder(RecorderQuery{Name: "missing"})
	assert.Error(t, err)
}

func TestManagerRegisterEmitterReplaysCachedState(t *testing.T) {
	mgr := newTestManagerWithRecorder(t, "true")
	t.Cleanup(mgr.Stop)

	// Drive the manager's cached RecorderHolder state directly rather than
	// racing a real child process, to make the replay assertion
	// deterministic: RegisterEmitter must see exactly what handleEvent last
	// recorded.
	mgr.handleEvent(newStarted("news"))
	mgr.handleEvent(newRecordStarted("news", 7))

	received := make(chan Event, 8)
	mgr.RegisterEmitter(EmitterFunc(func(ev Event) { received <- ev }))

	var gotStarted, gotRecordStarted bool
	deadline := time.After(time.Second)
	for !gotStarted || !gotRecordStarted {
		select {
		case ev := <-received:
			switch e := ev.(type) {
			case StartedEvent:
				gotStarted = true
			case RecordStartedEvent:
				gotRecordStarted = true
				assert.Equal(t, models.TimeshiftRecordId(7), e.RecordID)
			}
		case <-deadline:
			t.Fatal("timed out waiting for replayed state")
		}
	}
}

func TestManagerQueryRecordsNotFound(t *testing.T) {
	mgr := newTestManagerWithRecorder(t, "true")
	t.Cleanup(mgr.Stop)

	_, err := mgr.QueryRecord(RecorderQuery{Name: "news"}, 999)
	assert.Error(t, err)
}

func TestFilepathHelpersAreStable(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b.json"), SidecarPath(filepath.Join("a", "b")))
}
