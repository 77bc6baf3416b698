package tuner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Manager is the pool of Tuners. It owns the admission algorithm:
// a tracker joins its target session directly; otherwise use a tuner
// dedicated to the user, else reuse a matching active session, else take an
// idle tuner, else preempt a lower-priority user. The whole decision runs
// under one lock so two concurrent requests cannot both claim the same
// idle tuner.
type Manager struct {
	mu     sync.Mutex
	tuners []*Tuner
	logger *slog.Logger
}

// NewManager builds a Manager over tuners, indexed by their position in
// the slice (which must match each Tuner's Index field).
func NewManager(tuners []*Tuner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{tuners: tuners, logger: logger}
}

// Tuners returns the manager's tuner pool, in index order. Callers must
// not mutate the returned slice.
func (m *Manager) Tuners() []*Tuner {
	return m.tuners
}

// StartStreaming runs the admission algorithm for user requesting channel,
// spawning extraArgs/filters through whichever tuner is selected, and
// returns the resulting session plus the caller's new subscription id.
func (m *Manager) StartStreaming(ctx context.Context, user models.TunerUser, channel models.Channel, extraArgs string, filters []string) (*Session, models.TunerSubscriptionId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rule 1: Tracker targets an existing session directly.
	if user.Info.Kind == models.UserInfoTracker {
		idx := user.Info.StreamID.SessionId.TunerIndex
		if idx < 0 || idx >= len(m.tuners) {
			return nil, models.TunerSubscriptionId{}, apperr.ErrTunerUnavailable
		}
		t := m.tuners[idx]
		if !t.IsActive() {
			return nil, models.TunerSubscriptionId{}, apperr.ErrTunerUnavailable
		}
		subID, err := t.Subscribe(user)
		if err != nil {
			return nil, models.TunerSubscriptionId{}, apperr.ErrTunerUnavailable
		}
		return t.Session(), subID, nil
	}

	// Rule 2: a tuner dedicated to this user's identity.
	for _, t := range m.tuners {
		if !t.IsDedicatedFor(user.Info) {
			continue
		}
		if !t.IsActive() {
			m.logger.Info("activating dedicated tuner", "tuner.index", t.Index, "channel", channel)
			if _, err := t.Activate(ctx, channel, extraArgs, filters); err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
		}
		subID, err := t.Subscribe(user)
		if err != nil {
			return nil, models.TunerSubscriptionId{}, err
		}
		return t.Session(), subID, nil
	}

	// Rule 3: reuse an already-active session on the same channel.
	for _, t := range m.tuners {
		if t.DedicatedFor != nil {
			continue
		}
		if t.IsReusable(channel) {
			subID, err := t.Subscribe(user)
			if err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
			m.logger.Info("reusing active session", "tuner.index", t.Index, "channel", channel)
			return t.Session(), subID, nil
		}
	}

	// Rule 4: an idle, type-supporting tuner.
	for _, t := range m.tuners {
		if t.DedicatedFor != nil {
			continue
		}
		if t.IsAvailableFor(channel) {
			if _, err := t.Activate(ctx, channel, extraArgs, filters); err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
			subID, err := t.Subscribe(user)
			if err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
			m.logger.Info("activated idle tuner", "tuner.index", t.Index, "channel", channel)
			return t.Session(), subID, nil
		}
	}

	// Rule 5: preempt a lower-priority session.
	for _, t := range m.tuners {
		if t.DedicatedFor != nil {
			continue
		}
		if !t.IsSupportedType(channel.Type) {
			continue
		}
		if t.CanGrab(user.Priority) {
			m.logger.Info("preempting tuner", "tuner.index", t.Index, "channel", channel)
			t.Deactivate()
			if _, err := t.Activate(ctx, channel, extraArgs, filters); err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
			subID, err := t.Subscribe(user)
			if err != nil {
				return nil, models.TunerSubscriptionId{}, err
			}
			return t.Session(), subID, nil
		}
	}

	return nil, models.TunerSubscriptionId{}, apperr.ErrTunerUnavailable
}

// StopStreaming forwards to the tuner identified by id's session, and
// deactivates it once no subscribers remain. A mismatched session id (the
// tuner has since moved on to a different session) is logged and
// swallowed rather than returned as an error, since the caller only
// wanted its own subscription torn down.
func (m *Manager) StopStreaming(id models.TunerSubscriptionId) {
	idx := id.SessionId.TunerIndex
	if idx < 0 || idx >= len(m.tuners) {
		m.logger.Warn("stop streaming: tuner index out of range", "subscription.id", id)
		return
	}
	t := m.tuners[idx]

	remaining, err := t.StopStreaming(id)
	if err != nil {
		m.logger.Info("stop streaming: session not found", "subscription.id", id)
		return
	}
	if remaining == 0 {
		t.Deactivate()
	}
}
