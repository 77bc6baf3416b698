package filter

import (
	"strings"
	"text/template"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
)

// DefaultContentType is what a stream reports when no filter in the chain
// overrides it.
const DefaultContentType = "video/MP2T"

// Spec is one configured filter stage: a logic-less command template plus
// an optional content-type override applied only when the template
// renders to a non-empty command.
type Spec struct {
	Name        string
	Command     string
	ContentType string
}

// Result is the rendered filter pipeline: an ordered list of non-empty
// command strings and the resolved content type.
type Result struct {
	Commands    []string
	ContentType string
}

// Build renders each spec's Command template against ctx, in order.
// Filters whose rendered command is empty (after whitespace trimming) are
// elided entirely — their content-type override does not apply either.
// Callers order specs pre-filters, decode, then post-filters, so a later
// override wins ("post-filters win last").
// A template parse or execution error surfaces as apperr.ErrInvalidFilter.
func Build(ctx Context, specs []Spec) (Result, error) {
	result := Result{ContentType: DefaultContentType}
	fields := ctx.fields()

	for _, spec := range specs {
		rendered, err := render(spec.Name, spec.Command, fields)
		if err != nil {
			return Result{}, err
		}
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		result.Commands = append(result.Commands, rendered)
		if spec.ContentType != "" {
			result.ContentType = spec.ContentType
		}
	}

	return result, nil
}

func render(name, tmpl string, fields map[string]any) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", wrapInvalid(name, err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, fields); err != nil {
		return "", wrapInvalid(name, err)
	}
	return sb.String(), nil
}

func wrapInvalid(name string, cause error) error {
	if name == "" {
		name = "<anonymous filter>"
	}
	return &invalidFilterError{name: name, cause: cause}
}

// invalidFilterError wraps apperr.ErrInvalidFilter with which filter failed
// and why, while still satisfying errors.Is(err, apperr.ErrInvalidFilter).
type invalidFilterError struct {
	name  string
	cause error
}

func (e *invalidFilterError) Error() string {
	return "invalid filter " + e.name + ": " + e.cause.Error()
}

func (e *invalidFilterError) Unwrap() error {
	return e.cause
}

func (e *invalidFilterError) Is(target error) bool {
	return target == apperr.ErrInvalidFilter
}
