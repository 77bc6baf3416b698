package models

import (
	"fmt"
	"sync/atomic"
)

// sessionSeq is a process-wide monotonic counter. Session identifiers must
// encode the process lifetime: a restart produces entirely new identities,
// so this counter is never persisted or reset.
var sessionSeq atomic.Uint32

// TunerSessionId identifies one activation of one tuner, unique for the
// lifetime of the process. Printed as "tuner#<i>.<n>".
type TunerSessionId struct {
	TunerIndex int
	SessionSeq uint32
}

// NewTunerSessionId allocates the next session id for the given tuner
// index, drawing from the process-wide monotonic counter.
func NewTunerSessionId(tunerIndex int) TunerSessionId {
	return TunerSessionId{
		TunerIndex: tunerIndex,
		SessionSeq: sessionSeq.Add(1),
	}
}

// String implements fmt.Stringer.
func (id TunerSessionId) String() string {
	return fmt.Sprintf("tuner#%d.%d", id.TunerIndex, id.SessionSeq)
}

// TunerSubscriptionId identifies one consumer of one tuner session. The
// Serial is scoped to the owning session and starts at 1.
type TunerSubscriptionId struct {
	SessionId TunerSessionId
	Serial    uint32
}

// String implements fmt.Stringer.
func (id TunerSubscriptionId) String() string {
	return fmt.Sprintf("%s.%d", id.SessionId, id.Serial)
}
