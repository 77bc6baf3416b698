package tuner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/broadcaster"
	"github.com/sanshiro-tv/tunerd/internal/command"
	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Config describes one physical tuner device as loaded from configuration.
type Config struct {
	Index           int
	Name            string
	ChannelTypes    []models.ChannelType
	CommandTemplate string
	TimeLimit       time.Duration
	Decoded         bool
	DedicatedFor    *models.TunerUserInfo
}

// Tuner holds one device configuration and at most one active Session.
// Activation requires the tuner be Inactive; deactivation is idempotent.
type Tuner struct {
	Index           int
	Name            string
	ChannelTypes    []models.ChannelType
	CommandTemplate string
	TimeLimit       time.Duration
	Decoded         bool
	DedicatedFor    *models.TunerUserInfo

	mu      sync.Mutex
	session *Session
	logger  *slog.Logger
}

// New constructs an inactive Tuner from Config.
func New(cfg Config, logger *slog.Logger) *Tuner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tuner{
		Index:           cfg.Index,
		Name:            cfg.Name,
		ChannelTypes:    cfg.ChannelTypes,
		CommandTemplate: cfg.CommandTemplate,
		TimeLimit:       cfg.TimeLimit,
		Decoded:         cfg.Decoded,
		DedicatedFor:    cfg.DedicatedFor,
		logger:          logger.With("tuner.index", cfg.Index, "tuner.name", cfg.Name),
	}
}

// IsActive reports whether the tuner currently holds a Session.
func (t *Tuner) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil
}

// IsAvailable reports whether the tuner is inactive (idle, admission rule
// 4's candidate pool).
func (t *Tuner) IsAvailable() bool {
	return !t.IsActive()
}

// IsSupportedType reports whether channelType is among the tuner's
// configured channel types.
func (t *Tuner) IsSupportedType(channelType models.ChannelType) bool {
	for _, ct := range t.ChannelTypes {
		if ct == channelType {
			return true
		}
	}
	return false
}

// IsAvailableFor reports whether the tuner is idle and supports channel's
// type (admission rule 4).
func (t *Tuner) IsAvailableFor(channel models.Channel) bool {
	return t.IsAvailable() && t.IsSupportedType(channel.Type)
}

// IsDedicatedFor reports whether this tuner is reserved for the given user
// identity. Dedication compares the full TunerUserInfo (kind and payload),
// not only the variant tag — see DESIGN.md's note on this Open Question.
func (t *Tuner) IsDedicatedFor(info models.TunerUserInfo) bool {
	return t.DedicatedFor != nil && t.DedicatedFor.Equal(info)
}

// IsReusable reports whether the tuner is active on exactly this channel
// (admission rule 3).
func (t *Tuner) IsReusable(channel models.Channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.isReusable(channel)
}

// CanGrab reports whether a requester at priority may preempt this
// tuner's active session (admission rule 5). An inactive tuner cannot be
// grabbed via this path — rule 4 already covers it.
func (t *Tuner) CanGrab(priority models.TunerUserPriority) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.canGrab(priority)
}

// Session returns the tuner's active session, or nil if inactive.
func (t *Tuner) Session() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Activate renders the receiver command from the tuner's template,
// prepends it to filters, spawns the resulting pipeline, binds a new
// broadcaster to its tail stdout, and transitions the tuner to active.
// Fails with a *apperr.CommandError if activation requires an inactive
// tuner and one is not inactive, or if spawning fails.
func (t *Tuner) Activate(ctx context.Context, channel models.Channel, extraArgs string, filters []string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil, apperr.NewCommandError(t.CommandTemplate, apperr.PipelineBroken, errStillActive)
	}

	receiverCmd, err := renderReceiverCommand(t.CommandTemplate, string(channel.Type), channel.Channel, extraArgs)
	if err != nil {
		return nil, err
	}

	commands := make([]string, 0, len(filters)+1)
	commands = append(commands, receiverCmd)
	commands = append(commands, filters...)

	tag, err := ulid.New(ulid.Timestamp(time.Now()), nil)
	if err != nil {
		return nil, apperr.NewCommandError(receiverCmd, apperr.UnableToSpawn, err)
	}

	pipeline, err := command.Spawn(ctx, commands, tag, t.logger)
	if err != nil {
		return nil, err
	}

	_, tail, err := pipeline.TakeEndpoints()
	if err != nil {
		_ = pipeline.Close()
		return nil, apperr.NewCommandError(receiverCmd, apperr.PipelineBroken, err)
	}

	bc := broadcaster.New(broadcaster.DefaultConfig(t.TimeLimit), t.logger)
	if err := bc.BindSource(tail); err != nil {
		_ = pipeline.Close()
		return nil, apperr.NewCommandError(receiverCmd, apperr.PipelineBroken, err)
	}

	id := models.NewTunerSessionId(t.Index)
	session := newSession(id, channel, receiverCmd, pipeline, bc)
	t.session = session
	t.logger.Info("tuner activated", "session.id", id, "channel", channel)
	return session, nil
}

// Deactivate tears down the active session, if any. Idempotent.
func (t *Tuner) Deactivate() {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()

	if session != nil {
		session.teardown()
		t.logger.Info("tuner deactivated", "session.id", session.ID)
	}
}

// Subscribe assigns a new subscription to the active session. Fails if the
// tuner is inactive.
func (t *Tuner) Subscribe(user models.TunerUser) (models.TunerSubscriptionId, error) {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return models.TunerSubscriptionId{}, apperr.ErrTunerUnavailable
	}
	return session.subscribe(user), nil
}

// StopStreaming removes the subscription identified by id. If id's session
// no longer matches the tuner's active session, returns
// apperr.ErrSessionNotFound. Otherwise returns the number of subscribers
// remaining on the session after removal.
func (t *Tuner) StopStreaming(id models.TunerSubscriptionId) (int, error) {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil || session.ID != id.SessionId {
		return 0, apperr.ErrSessionNotFound
	}

	remaining, removed := session.unsubscribe(id.Serial)
	if !removed {
		return remaining, apperr.ErrSessionNotFound
	}
	return remaining, nil
}
