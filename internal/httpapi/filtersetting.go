package httpapi

import (
	"fmt"
	"net/url"
	"strings"
)

// FilterSetting is the decoded form of a stream request's query string:
// whether the caller wants the tuner's receiver command to decode
// (descramble) the channel, and the ordered pre-/post-filter chains to
// splice around it.
type FilterSetting struct {
	Decode      bool
	PreFilters  []string
	PostFilters []string
}

// ParseFilterSetting parses a raw query string (with or without a leading
// "?") into a FilterSetting. decode accepts "0"/"1"/"false"/"true";
// pre-filters[]/post-filters[] accept both bracket-index
// ("pre-filters[0]=a") and bracket-empty ("pre-filters[]=a") repeated-key
// forms, preserving the order keys were parsed in for the empty-bracket
// form and numeric order for the indexed form.
func ParseFilterSetting(raw string) (FilterSetting, error) {
	raw = strings.TrimPrefix(raw, "?")
	values, err := url.ParseQuery(raw)
	if err != nil {
		return FilterSetting{}, fmt.Errorf("parsing filter setting query: %w", err)
	}

	var fs FilterSetting

	if v := values.Get("decode"); v != "" {
		decode, err := parseBoolFlag(v)
		if err != nil {
			return FilterSetting{}, fmt.Errorf("parsing decode=%q: %w", v, err)
		}
		fs.Decode = decode
	}

	fs.PreFilters = collectBracketedValues(values, "pre-filters")
	fs.PostFilters = collectBracketedValues(values, "post-filters")

	return fs, nil
}

// parseBoolFlag accepts "0", "1", "false", "true"; anything else is a
// parse error.
func parseBoolFlag(v string) (bool, error) {
	switch v {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", v)
	}
}

// collectBracketedValues gathers every key of the form "name[]" or
// "name[N]" from values, in increasing order of N for the indexed form,
// and in query order for repeated "name[]" entries.
func collectBracketedValues(values url.Values, name string) []string {
	type indexed struct {
		index int
		value string
	}
	var ordered []string
	var numbered []indexed

	emptyKey := name + "[]"
	if vs, ok := values[emptyKey]; ok {
		ordered = append(ordered, vs...)
	}

	prefix := name + "["
	for key, vs := range values {
		if key == emptyKey || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "]") {
			continue
		}
		indexStr := key[len(prefix) : len(key)-1]
		if indexStr == "" {
			continue
		}
		idx := 0
		if _, err := fmt.Sscanf(indexStr, "%d", &idx); err != nil {
			continue
		}
		for _, v := range vs {
			numbered = append(numbered, indexed{index: idx, value: v})
		}
	}

	if len(numbered) == 0 {
		return ordered
	}

	for i := 1; i < len(numbered); i++ {
		for j := i; j > 0 && numbered[j-1].index > numbered[j].index; j-- {
			numbered[j-1], numbered[j] = numbered[j], numbered[j-1]
		}
	}

	out := make([]string, 0, len(ordered)+len(numbered))
	out = append(out, ordered...)
	for _, n := range numbered {
		out = append(out, n.value)
	}
	return out
}
