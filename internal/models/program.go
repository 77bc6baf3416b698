package models

import "time"

// ProgramDescriptor carries the minimal EPG facts a timeshift record links
// to: enough to identify and label a program without pulling in EPG
// collection/scheduling, which is out of scope. Populated by whatever
// external EPG collaborator observes program-change events and reported to
// the recorder as an opaque value at record-open time.
type ProgramDescriptor struct {
	ServiceID int64     `json:"serviceId"`
	EventID   int64     `json:"eventId"`
	Name      string    `json:"name"`
	StartAt   time.Time `json:"startAt"`
}
