// Package filter composes templated filter command strings from
// tuner/channel/program context into an ordered command list plus a
// content type.
package filter

import (
	"time"

	"github.com/sanshiro-tv/tunerd/internal/command"
)

// Context carries the fixed field set filter templates may reference:
// string/numeric fields drawn from tuner, channel, program, clock, and
// record state. Zero-value fields render as their Go zero value ("" or
// 0), except an empty Channel or ChannelType, which renders as the quoted
// empty word ''; callers should only populate what's meaningful for the
// request at hand (e.g. RecordID is meaningless outside timeshift reads).
type Context struct {
	TunerIndex  int
	TunerName   string
	ChannelType string
	Channel     string
	ServiceID   int64
	ProgramID   int64
	ProgramName string
	RecordID    uint32
	Now         time.Time
	Decode      bool
}

// fields renders Context into the map text/template executes against,
// using the same snake_case field names as the receiver command template
// for consistency across both template contexts. channel/channel_type
// ultimately come from the caller (an HTTP path parameter on the streaming
// route), so they are shell-quoted the same way renderReceiverCommand
// quotes ExtraArgs before splicing into a filter command template.
func (c Context) fields() map[string]any {
	return map[string]any{
		"tuner_index":  c.TunerIndex,
		"tuner_name":   c.TunerName,
		"channel_type": command.QuoteShellWord(c.ChannelType),
		"channel":      command.QuoteShellWord(c.Channel),
		"service_id":   c.ServiceID,
		"program_id":   c.ProgramID,
		"program_name": c.ProgramName,
		"record_id":    c.RecordID,
		"now":          c.Now.Format(time.RFC3339),
		"decode":       c.Decode,
	}
}
