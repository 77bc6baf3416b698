package tuner

import (
	"sync"

	"github.com/sanshiro-tv/tunerd/internal/broadcaster"
	"github.com/sanshiro-tv/tunerd/internal/command"
	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Session binds one tuner activation to a channel: the spawned receiver
// (plus tuner filter) pipeline, the broadcaster fanning out its tail
// stdout, and the set of subscribers currently holding a subscription
// against it.
type Session struct {
	ID      models.TunerSessionId
	Channel models.Channel
	Command string

	pipeline    *command.Pipeline
	broadcaster *broadcaster.Broadcaster

	mu          sync.Mutex
	subscribers map[uint32]models.TunerUser
	nextSerial  uint32
}

func newSession(id models.TunerSessionId, channel models.Channel, cmd string, pipeline *command.Pipeline, bc *broadcaster.Broadcaster) *Session {
	return &Session{
		ID:          id,
		Channel:     channel,
		Command:     cmd,
		pipeline:    pipeline,
		broadcaster: bc,
		subscribers: make(map[uint32]models.TunerUser),
		nextSerial:  1,
	}
}

// isReusable reports whether an incoming request for channel can be
// satisfied by subscribing to this already-active session (admission
// rule 3).
func (s *Session) isReusable(channel models.Channel) bool {
	return s.Channel.Equal(channel)
}

// subscribe assigns the next serial number to user and records it,
// returning the resulting subscription id.
func (s *Session) subscribe(user models.TunerUser) models.TunerSubscriptionId {
	s.mu.Lock()
	defer s.mu.Unlock()
	serial := s.nextSerial
	s.nextSerial++
	s.subscribers[serial] = user
	return models.TunerSubscriptionId{SessionId: s.ID, Serial: serial}
}

// unsubscribe removes a subscriber by serial. Returns the number of
// subscribers remaining after removal, and whether the serial was present.
func (s *Session) unsubscribe(serial uint32) (remaining int, removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[serial]; ok {
		delete(s.subscribers, serial)
		removed = true
	}
	return len(s.subscribers), removed
}

// subscriberCount returns the number of current subscribers.
func (s *Session) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// canGrab reports whether a requester at the given priority may preempt
// this session: either the requester holds GRAB priority, or every
// current subscriber has strictly lower priority (equal priority cannot
// evict).
func (s *Session) canGrab(priority models.TunerUserPriority) bool {
	if priority == models.GRAB {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.subscribers {
		if u.Priority >= priority {
			return false
		}
	}
	return true
}

// subscriberUsers returns a snapshot of the session's current users, used
// to verify preemption eligibility in tests and logging.
func (s *Session) subscriberUsers() []models.TunerUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TunerUser, 0, len(s.subscribers))
	for _, u := range s.subscribers {
		out = append(out, u)
	}
	return out
}

// teardown stops the broadcaster and closes the pipeline, reaping its
// children. Safe to call once per session.
func (s *Session) teardown() {
	s.broadcaster.Stop()
	_ = s.pipeline.Close()
}

// Broadcaster exposes the session's fan-out broadcaster for subscribing
// HTTP consumers.
func (s *Session) Broadcaster() *broadcaster.Broadcaster {
	return s.broadcaster
}

// PIDs returns the OS process ids of the session's receiver/filter
// pipeline, for the REST tuner-info endpoint.
func (s *Session) PIDs() []int {
	return s.pipeline.PIDs()
}

// Users returns a snapshot of the session's current subscribers, for the
// REST tuner-info endpoint.
func (s *Session) Users() []models.TunerUser {
	return s.subscriberUsers()
}
