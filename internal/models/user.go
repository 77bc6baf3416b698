package models

import (
	"fmt"
	"math"
)

// TunerUserInfoKind distinguishes the six collaborator kinds that can hold
// a tuner subscription.
type TunerUserInfoKind int

// Recognized TunerUserInfo variants.
const (
	UserInfoWeb TunerUserInfoKind = iota
	UserInfoJob
	UserInfoOnairProgramTracker
	UserInfoTracker
	UserInfoRecorder
	UserInfoTimeshiftRecorder
)

func (k TunerUserInfoKind) String() string {
	switch k {
	case UserInfoWeb:
		return "web"
	case UserInfoJob:
		return "job"
	case UserInfoOnairProgramTracker:
		return "onair-program-tracker"
	case UserInfoTracker:
		return "tracker"
	case UserInfoRecorder:
		return "recorder"
	case UserInfoTimeshiftRecorder:
		return "timeshift-recorder"
	default:
		return "unknown"
	}
}

// TunerUserInfo identifies what kind of collaborator holds a tuner
// subscription. Only the fields relevant to its Kind are populated; Equal
// compares both the Kind and the populated fields, which is what dedicated-
// tuner matching and preemption eligibility rely on.
type TunerUserInfo struct {
	Kind TunerUserInfoKind

	// Web fields.
	Addr  string
	Agent string

	// Job / OnairProgramTracker / Recorder / TimeshiftRecorder fields.
	Name string

	// Tracker field.
	StreamID TunerSubscriptionId
}

// NewWebUser builds a TunerUserInfo for an HTTP client, identified by
// remote address and optional user agent.
func NewWebUser(addr, agent string) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoWeb, Addr: addr, Agent: agent}
}

// NewJobUser builds a TunerUserInfo for a named background job.
func NewJobUser(name string) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoJob, Name: name}
}

// NewOnairProgramTrackerUser builds a TunerUserInfo for a named on-air
// program tracker, the usual target of a dedicated tuner.
func NewOnairProgramTrackerUser(name string) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoOnairProgramTracker, Name: name}
}

// NewTrackerUser builds a TunerUserInfo that targets a specific existing
// session directly (admission rule 1).
func NewTrackerUser(streamID TunerSubscriptionId) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoTracker, StreamID: streamID}
}

// NewRecorderUser builds a TunerUserInfo for a named plain recorder.
func NewRecorderUser(name string) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoRecorder, Name: name}
}

// NewTimeshiftRecorderUser builds a TunerUserInfo for a named timeshift
// recorder.
func NewTimeshiftRecorderUser(name string) TunerUserInfo {
	return TunerUserInfo{Kind: UserInfoTimeshiftRecorder, Name: name}
}

// Equal reports whether two TunerUserInfo values name the same
// collaborator: same Kind and same identifying fields for that Kind.
func (u TunerUserInfo) Equal(other TunerUserInfo) bool {
	if u.Kind != other.Kind {
		return false
	}
	switch u.Kind {
	case UserInfoWeb:
		return u.Addr == other.Addr && u.Agent == other.Agent
	case UserInfoJob, UserInfoOnairProgramTracker, UserInfoRecorder, UserInfoTimeshiftRecorder:
		return u.Name == other.Name
	case UserInfoTracker:
		return u.StreamID == other.StreamID
	default:
		return false
	}
}

// String renders a log-friendly identifier, e.g. "onair-program-tracker(news)".
func (u TunerUserInfo) String() string {
	switch u.Kind {
	case UserInfoWeb:
		if u.Agent != "" {
			return fmt.Sprintf("web(%s, %s)", u.Addr, u.Agent)
		}
		return fmt.Sprintf("web(%s)", u.Addr)
	case UserInfoTracker:
		return fmt.Sprintf("tracker(%s)", u.StreamID)
	default:
		return fmt.Sprintf("%s(%s)", u.Kind, u.Name)
	}
}

// TunerUserPriority ranks a subscriber for preemption purposes. GRAB is a
// sentinel maximum that unconditionally wins admission: a GRAB request
// evicts any session, even one held at GRAB. Below GRAB, a request evicts
// only when its priority is strictly higher (equal priority cannot evict).
type TunerUserPriority int32

// GRAB is the sentinel maximum priority.
const GRAB TunerUserPriority = math.MaxInt32

// TunerUser pairs a collaborator identity with its admission priority.
type TunerUser struct {
	Info     TunerUserInfo
	Priority TunerUserPriority
}
