package timeshift

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
)

// recorderHolder caches started/current-record-id state kept in sync by
// the recorder's own events, read by RegisterEmitter without having to
// call into the recorder (which could deadlock if its event channel
// were full).
type recorderHolder struct {
	recorder         *Recorder
	started          bool
	currentRecordID  models.TimeshiftRecordId
	hasCurrentRecord bool
}

// Manager is an ordered pool of Recorders, proxied by name or index,
// health-checked on a cron schedule, and fanning out events to
// registered emitters.
type Manager struct {
	mu    sync.Mutex
	order []string
	byName map[string]*recorderHolder

	tunerManager *tuner.Manager
	logger       *slog.Logger
	emitters     *EmitterRegistry

	cron *cron.Cron
}

// NewManager builds a manager over an initially empty recorder pool;
// recorders are added with AddRecorder before Start.
func NewManager(tunerManager *tuner.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		byName:       make(map[string]*recorderHolder),
		tunerManager: tunerManager,
		logger:       logger,
		emitters:     NewEmitterRegistry(),
	}
}

// AddRecorder builds a Recorder from cfg and adds it to the pool in
// registration order (registration order is its index for
// TimeshiftRecorderQuery::ByIndex-style lookups).
func (m *Manager) AddRecorder(cfg RecorderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder := &recorderHolder{}
	rec, err := NewRecorder(cfg, m.tunerManager, func(ev Event) {
		m.handleEvent(ev)
	}, m.logger)
	if err != nil {
		return err
	}
	holder.recorder = rec

	m.order = append(m.order, cfg.Name)
	m.byName[cfg.Name] = holder
	return nil
}

// Start launches every configured recorder, without consulting service
// availability, and starts the "50 seconds past every minute"
// health-check cron.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	c := cron.New(cron.WithSeconds())
	_, _ = c.AddFunc("50 * * * * *", m.healthCheck)
	m.cron = c
	holders := make([]*recorderHolder, 0, len(m.order))
	for _, name := range m.order {
		holders = append(holders, m.byName[name])
	}
	m.mu.Unlock()

	// There is no EPG feed in this server to report service availability,
	// so every configured recorder is started immediately; ServiceUpdated
	// remains available for a future EPG integration to drive start/stop.
	for _, h := range holders {
		if err := h.recorder.Start(ctx); err != nil {
			m.logger.Warn("timeshift: initial start failed", "recorder", h.recorder.Name(), "error", err)
		}
	}

	c.Start()
}

// Stop halts the cron scheduler and every recorder.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.cron
	holders := make([]*recorderHolder, 0, len(m.order))
	for _, name := range m.order {
		holders = append(holders, m.byName[name])
	}
	m.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	for _, h := range holders {
		h.recorder.Close()
	}
}

// ServiceUpdated forwards service availability to the recorder configured
// for serviceID, matching the manager's ServicesUpdated fan-out.
func (m *Manager) ServiceUpdated(serviceID int64, available bool) {
	m.mu.Lock()
	var target *recorderHolder
	for _, name := range m.order {
		h := m.byName[name]
		if h.recorder.cfg.ServiceID == serviceID {
			target = h
			break
		}
	}
	m.mu.Unlock()

	if target != nil {
		target.recorder.ServiceUpdated(available)
	}
}

func (m *Manager) handleEvent(ev Event) {
	m.mu.Lock()
	if h, ok := m.byName[ev.Recorder()]; ok {
		switch e := ev.(type) {
		case StartedEvent:
			h.started = true
		case StoppedEvent:
			h.started = false
		case RecordStartedEvent:
			h.currentRecordID = e.RecordID
			h.hasCurrentRecord = true
		case RecordEndedEvent:
			h.hasCurrentRecord = false
		}
	}
	m.mu.Unlock()

	m.emitters.EmitAll(ev)
}

// healthCheck is the cron tick body: any recorder whose run loop has died
// while it should be active is respawned with freshly reset cached state.
func (m *Manager) healthCheck() {
	m.mu.Lock()
	holders := make([]*recorderHolder, 0, len(m.order))
	for _, name := range m.order {
		holders = append(holders, m.byName[name])
	}
	m.mu.Unlock()

	m.logger.Debug("timeshift: health check")
	for _, h := range holders {
		if err := h.recorder.HealthCheck(); err != nil {
			m.logger.Warn("timeshift: recorder unhealthy, respawning", "recorder", h.recorder.Name(), "error", err)
			h.recorder.Stop()
			m.mu.Lock()
			h.started = false
			h.hasCurrentRecord = false
			m.mu.Unlock()
			if err := h.recorder.Start(context.Background()); err != nil {
				m.logger.Error("timeshift: respawn failed", "recorder", h.recorder.Name(), "error", err)
			}
		}
	}
}

// RegisterEmitter registers e and, in a separate goroutine (to avoid
// deadlocking on a full emitter channel), replays the cached
// Started/RecordStarted state of every recorder so late subscribers see a
// consistent picture without waiting for the next natural event.
func (m *Manager) RegisterEmitter(e Emitter) uuid.UUID {
	m.mu.Lock()
	type snapshot struct {
		name             string
		started          bool
		hasCurrentRecord bool
		currentRecordID  models.TimeshiftRecordId
	}
	snapshots := make([]snapshot, 0, len(m.order))
	for _, name := range m.order {
		h := m.byName[name]
		snapshots = append(snapshots, snapshot{name, h.started, h.hasCurrentRecord, h.currentRecordID})
	}
	m.mu.Unlock()

	go func() {
		for _, s := range snapshots {
			if s.started {
				e.Emit(newStarted(s.name))
			}
			if s.hasCurrentRecord {
				e.Emit(newRecordStarted(s.name, s.currentRecordID))
			}
		}
	}()

	id := m.emitters.Register(e)
	m.logger.Debug("timeshift: RegisterEmitter", "id", id)
	return id
}

// UnregisterEmitter removes a previously registered emitter.
func (m *Manager) UnregisterEmitter(id uuid.UUID) {
	m.emitters.Unregister(id)
}

// RecorderQuery selects a recorder either by its registration-order index
// or by name.
type RecorderQuery struct {
	Index *int
	Name  string
}

func (m *Manager) lookup(q RecorderQuery) (*Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q.Index != nil {
		if *q.Index < 0 || *q.Index >= len(m.order) {
			return nil, apperr.ErrRecordNotFound
		}
		return m.byName[m.order[*q.Index]].recorder, nil
	}
	h, ok := m.byName[q.Name]
	if !ok {
		return nil, apperr.ErrRecordNotFound
	}
	return h.recorder, nil
}

// QueryRecorder returns the recorder selected by q.
func (m *Manager) QueryRecorder(q RecorderQuery) (*Recorder, error) {
	return m.lookup(q)
}

// QueryRecorders returns every recorder, in registration order.
func (m *Manager) QueryRecorders() []*Recorder {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]*Recorder, 0, len(m.order))
	for _, name := range m.order {
		recs = append(recs, m.byName[name].recorder)
	}
	return recs
}

// QueryRecords returns every record known to the recorder selected by q.
func (m *Manager) QueryRecords(q RecorderQuery) ([]models.TimeshiftRecord, error) {
	rec, err := m.lookup(q)
	if err != nil {
		return nil, err
	}
	return rec.Records()
}

// QueryRecord returns one record from the recorder selected by q.
func (m *Manager) QueryRecord(q RecorderQuery, id models.TimeshiftRecordId) (models.TimeshiftRecord, error) {
	rec, err := m.lookup(q)
	if err != nil {
		return models.TimeshiftRecord{}, err
	}
	found, ok := rec.Record(id)
	if !ok {
		return models.TimeshiftRecord{}, apperr.ErrRecordNotFound
	}
	return found, nil
}

// CreateLiveStreamSource opens a live reader on the recorder selected by q.
func (m *Manager) CreateLiveStreamSource(q RecorderQuery, capacity int) (*RingReader, error) {
	rec, err := m.lookup(q)
	if err != nil {
		return nil, err
	}
	return rec.OpenLiveReader(capacity), nil
}

// CreateRecordStreamSource opens a record reader on the recorder selected
// by q.
func (m *Manager) CreateRecordStreamSource(q RecorderQuery, id models.TimeshiftRecordId, startOffset int64, capacity int) (*RingReader, error) {
	rec, err := m.lookup(q)
	if err != nil {
		return nil, err
	}
	return rec.OpenRecordReader(id, startOffset, capacity)
}
