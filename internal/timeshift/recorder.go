package timeshift

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
)

// RecorderConfig is one entry of the config file's timeshift.recorders[].
type RecorderConfig struct {
	Name        string
	ServiceID   int64
	ChannelType models.ChannelType
	Channel     string
	ExtraArgs   string
	Filters     []string
	RingSize    int64
	RecordPath  string // base path of the sidecar, written to SidecarPath(RecordPath)
	TSFile      string // path of the ring file (<name>.m2ts)
}

// Recorder is one Timeshift Recorder: a continuous capture into a
// fixed-size ring for a single configured service. A background goroutine
// drives the Stopped→Starting→Started→Stopping state machine; all public
// methods are safe to call concurrently with it.
type Recorder struct {
	name         string
	cfg          RecorderConfig
	tunerManager *tuner.Manager
	emit         func(Event)
	logger       *slog.Logger

	mu               sync.Mutex
	state            models.TimeshiftRecorderState
	serviceAvailable bool
	ring             *Ring
	index            *RecordIndex
	current          *models.TimeshiftRecord
	nextRecordID     models.TimeshiftRecordId

	subID  models.TunerSubscriptionId
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	lastErr error
}

// NewRecorder builds a recorder over cfg, loading an existing sidecar if
// one is present. On startup, any record left with Recording == true is
// closed out at the recovered current point: a crash mid-recording should
// not leave a dangling open-ended record behind.
func NewRecorder(cfg RecorderConfig, tunerManager *tuner.Manager, emit func(Event), logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index, err := NewRecordIndex(diskSliceOptions(cfg.Name))
	if err != nil {
		return nil, err
	}

	start := models.CurrentPoint{}
	var nextID models.TimeshiftRecordId

	sidecarPath := SidecarPath(cfg.RecordPath)
	if doc, err := LoadSidecar(sidecarPath); err == nil {
		start = doc.CurrentPoint
		for _, rec := range doc.Records {
			if rec.Recording {
				rec.Recording = false
				rec.EndTime = start.Timestamp
				rec.EndPos = start.Pos
			}
			if err := index.Append(rec); err != nil {
				return nil, err
			}
			if rec.ID >= nextID {
				nextID = rec.ID + 1
			}
		}
	}

	ring, err := OpenRing(cfg.TSFile, cfg.RingSize, start)
	if err != nil {
		index.Close()
		return nil, err
	}

	return &Recorder{
		name:         cfg.Name,
		cfg:          cfg,
		tunerManager: tunerManager,
		emit:         emit,
		logger:       logger,
		state:        models.RecorderStopped,
		ring:         ring,
		index:        index,
		nextRecordID: nextID,
	}, nil
}

// Name returns the recorder's configured name.
func (r *Recorder) Name() string { return r.name }

// State returns the recorder's current lifecycle state.
func (r *Recorder) State() models.TimeshiftRecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Started reports whether the recorder is in the Started state.
func (r *Recorder) Started() bool {
	return r.State() == models.RecorderStarted
}

// CurrentRecordID returns the id of the open (recording=true) record, if
// any.
func (r *Recorder) CurrentRecordID() (models.TimeshiftRecordId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0, false
	}
	return r.current.ID, true
}

// ServiceUpdated tells the recorder whether its configured service is
// currently available. Transitioning to unavailable while Started drives
// the recorder to Stopping.
func (r *Recorder) ServiceUpdated(available bool) {
	r.mu.Lock()
	r.serviceAvailable = available
	state := r.state
	r.mu.Unlock()

	if available && state == models.RecorderStopped {
		if err := r.Start(context.Background()); err != nil {
			r.logger.Warn("timeshift: start on service available failed", "recorder", r.name, "error", err)
		}
		return
	}
	if !available && state == models.RecorderStarted {
		r.Stop()
	}
}

// Start transitions Stopped→Starting and launches the tuner subscription
// goroutine. It is a no-op if the recorder is not Stopped.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != models.RecorderStopped {
		r.mu.Unlock()
		return nil
	}
	r.state = models.RecorderStarting
	r.lastErr = nil
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())

	user := models.TunerUser{
		Info:     models.NewTimeshiftRecorderUser(r.name),
		Priority: models.GRAB,
	}
	channel := models.Channel{Type: r.cfg.ChannelType, Channel: r.cfg.Channel}

	session, subID, err := r.tunerManager.StartStreaming(ctx, user, channel, r.cfg.ExtraArgs, r.cfg.Filters)
	if err != nil {
		cancel()
		r.mu.Lock()
		r.state = models.RecorderStopped
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.subID = subID
	r.cancel = cancel
	r.mu.Unlock()

	sub := session.Broadcaster().Subscribe(r.name)
	r.loopWG.Add(1)
	go r.runLoop(runCtx, sub)
	return nil
}

func (r *Recorder) runLoop(ctx context.Context, sub interface {
	Chunks() <-chan []byte
}) {
	defer r.loopWG.Done()

	first := true
	for {
		select {
		case <-ctx.Done():
			r.finish()
			return
		case chunk, ok := <-sub.Chunks():
			if !ok {
				r.finish()
				return
			}
			if first {
				first = false
				r.onFirstChunk()
			}
			if err := r.onChunk(chunk); err != nil {
				r.mu.Lock()
				r.lastErr = err
				r.mu.Unlock()
				r.logger.Error("timeshift: ring write failed", "recorder", r.name, "error", err)
				r.finish()
				return
			}
		}
	}
}

func (r *Recorder) onFirstChunk() {
	r.mu.Lock()
	r.state = models.RecorderStarted
	r.mu.Unlock()
	r.emitEvent(newStarted(r.name))
	r.openRecord(models.ProgramDescriptor{ServiceID: r.cfg.ServiceID})
}

func (r *Recorder) onChunk(chunk []byte) error {
	now := time.Now()
	_, err := r.ring.Write(chunk, now)
	if err != nil {
		return err
	}

	floor := r.ring.Current().Pos - r.ring.Size()
	if floor > 0 {
		if _, err := r.index.EvictBefore(floor); err != nil {
			r.logger.Warn("timeshift: evicting old records failed", "recorder", r.name, "error", err)
		}
	}
	return r.saveSidecar()
}

// openRecord opens a new current record at the ring's live position.
func (r *Recorder) openRecord(program models.ProgramDescriptor) {
	r.mu.Lock()
	id := r.nextRecordID
	r.nextRecordID++
	r.current = &models.TimeshiftRecord{
		ID:        id,
		Program:   program,
		StartTime: time.Now(),
		StartPos:  r.ring.Current().Pos,
		Recording: true,
	}
	r.mu.Unlock()
	r.emitEvent(newRecordStarted(r.name, id))
}

// RotateRecord closes the currently open record and opens a new one
// attached to program. There is no EPG feed in this server to synthesize
// program-change boundaries automatically, so callers (e.g. a future EPG
// integration, or an operator-triggered API) invoke this explicitly.
func (r *Recorder) RotateRecord(program models.ProgramDescriptor) error {
	r.closeCurrentRecord()
	if r.State() == models.RecorderStarted {
		r.openRecord(program)
	}
	return r.saveSidecar()
}

func (r *Recorder) closeCurrentRecord() {
	r.mu.Lock()
	cur := r.current
	r.current = nil
	r.mu.Unlock()
	if cur == nil {
		return
	}
	cur.Recording = false
	cur.EndTime = time.Now()
	cur.EndPos = r.ring.Current().Pos
	if err := r.index.Append(*cur); err != nil {
		r.logger.Warn("timeshift: appending closed record failed", "recorder", r.name, "error", err)
	}
	r.emitEvent(newRecordEnded(r.name, cur.ID))
}

// finish runs the Started/Starting→Stopping→Stopped drain: close the open
// record, unsubscribe from the tuner, persist, and emit the trailing
// events.
func (r *Recorder) finish() {
	r.mu.Lock()
	if r.state == models.RecorderStopped {
		r.mu.Unlock()
		return
	}
	r.state = models.RecorderStopping
	subID := r.subID
	r.mu.Unlock()

	r.closeCurrentRecord()
	r.tunerManager.StopStreaming(subID)
	_ = r.saveSidecar()

	r.mu.Lock()
	r.state = models.RecorderStopped
	r.mu.Unlock()
	r.emitEvent(newStopped(r.name))
}

// Stop requests a graceful stop; finish() runs once the run loop observes
// cancellation.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.loopWG.Wait()
}

// HealthCheck reports an error if the recorder was started and its run
// loop has since exited on its own (stream end or ring write failure)
// rather than through Stop, signalling the manager should respawn it on
// the next tick.
func (r *Recorder) HealthCheck() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RecorderStopped && r.cancel != nil {
		if r.lastErr != nil {
			return fmt.Errorf("timeshift: recorder %q unhealthy: %w", r.name, r.lastErr)
		}
		return fmt.Errorf("timeshift: recorder %q run loop exited", r.name)
	}
	return nil
}

func (r *Recorder) emitEvent(ev Event) {
	if r.emit != nil {
		r.emit(ev)
	}
}

// saveSidecar persists the ring size, live position, and full record list
// (closed records plus the open one, if any) atomically.
func (r *Recorder) saveSidecar() error {
	records, err := r.index.All()
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.current != nil {
		records = append(records, *r.current)
	}
	r.mu.Unlock()

	return SaveSidecar(SidecarPath(r.cfg.RecordPath), Sidecar{
		RingSize:     r.ring.Size(),
		CurrentPoint: r.ring.Current(),
		Records:      records,
	})
}

// Records returns every known record (closed plus the in-progress one),
// in insertion order.
func (r *Recorder) Records() ([]models.TimeshiftRecord, error) {
	records, err := r.index.All()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.current != nil {
		records = append(records, *r.current)
	}
	r.mu.Unlock()
	return records, nil
}

// Record returns the single record identified by id.
func (r *Recorder) Record(id models.TimeshiftRecordId) (models.TimeshiftRecord, bool) {
	r.mu.Lock()
	if r.current != nil && r.current.ID == id {
		rec := *r.current
		r.mu.Unlock()
		return rec, true
	}
	r.mu.Unlock()
	return r.index.Find(id)
}

// OpenLiveReader returns a stream that begins at the ring's current
// position and follows the writer indefinitely.
func (r *Recorder) OpenLiveReader(capacity int) *RingReader {
	return newRingReader(r.ring, r.ring.Current().Pos, -1, capacity)
}

// OpenRecordReader returns a stream over [record.StartPos+startOffset,
// record.EndPos) for a closed record, or to the live edge for the
// currently-open one.
func (r *Recorder) OpenRecordReader(id models.TimeshiftRecordId, startOffset int64, capacity int) (*RingReader, error) {
	rec, ok := r.Record(id)
	if !ok {
		return nil, apperr.ErrRecordNotFound
	}

	start := rec.StartPos + startOffset
	limit := rec.EndPos
	if rec.Recording {
		limit = -1
	}
	if limit >= 0 && start > limit {
		return nil, apperr.ErrOutOfRange
	}
	return newRingReader(r.ring, start, limit, capacity), nil
}

// Close tears the recorder down entirely (manager shutdown), stopping any
// active session and releasing the ring and record index.
func (r *Recorder) Close() error {
	r.Stop()
	r.index.Close()
	return r.ring.Close()
}
