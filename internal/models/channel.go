package models

import "fmt"

// ChannelType identifies a broadcast network kind. EPG/channel-scan details
// are out of scope; only the four values the admission algorithm and
// configuration allow-list need to distinguish are modeled.
type ChannelType string

// Supported channel types.
const (
	ChannelTypeGR  ChannelType = "GR"
	ChannelTypeBS  ChannelType = "BS"
	ChannelTypeCS  ChannelType = "CS"
	ChannelTypeSky ChannelType = "SKY"
)

// Valid reports whether t is one of the four recognized channel types.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelTypeGR, ChannelTypeBS, ChannelTypeCS, ChannelTypeSky:
		return true
	default:
		return false
	}
}

// Channel identifies a physical channel a tuner can be tuned to: a type
// plus a driver-specific channel string (e.g. a remote-control id or
// transponder identifier).
type Channel struct {
	Type    ChannelType `json:"type" yaml:"type"`
	Channel string      `json:"channel" yaml:"channel"`
}

// Equal reports whether two channels name the same type and channel string,
// the reuse test from the admission algorithm (rule 3).
func (c Channel) Equal(other Channel) bool {
	return c.Type == other.Type && c.Channel == other.Channel
}

// String renders "GR/0" style identifiers for logging.
func (c Channel) String() string {
	return fmt.Sprintf("%s/%s", c.Type, c.Channel)
}
