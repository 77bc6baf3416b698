package tuner

import (
	"strings"
	"text/template"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/command"
)

// receiverFields is the fixed field set a receiver command template may
// reference: {{.channel_type}} {{.channel}} {{.extra_args}} {{.duration}}.
// text/template supplies the substitution, using {{.field}} syntax in
// place of mustache's {{field}}.
type receiverFields struct {
	ChannelType string
	Channel     string
	ExtraArgs   string
	Duration    string
}

// renderReceiverCommand renders tmpl against the receiver's fixed field
// set. ExtraArgs and Channel come from the caller (ultimately an HTTP
// query parameter or path parameter) and are shell-quoted before
// rendering, per the design note that operator-supplied fields must be
// escaped or the render must fail.
func renderReceiverCommand(tmpl, channelType, channel, extraArgs string) (string, error) {
	t, err := template.New("receiver").Parse(tmpl)
	if err != nil {
		return "", apperr.NewCommandError(tmpl, apperr.UnableToParse, err)
	}

	fields := receiverFields{
		ChannelType: channelType,
		Channel:     command.QuoteShellWord(channel),
		ExtraArgs:   command.QuoteShellWord(extraArgs),
		Duration:    "-",
	}

	var sb strings.Builder
	if err := t.Execute(&sb, map[string]any{
		"channel_type": fields.ChannelType,
		"channel":      fields.Channel,
		"extra_args":   fields.ExtraArgs,
		"duration":     fields.Duration,
	}); err != nil {
		return "", apperr.NewCommandError(tmpl, apperr.UnableToParse, err)
	}
	return sb.String(), nil
}
