package httpapi

import "strings"

// htmlEscapeReplacer escapes the five characters needed to embed an
// untrusted value directly into an HTML response body without going
// through html/template (which already auto-escapes templated output).
var htmlEscapeReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&#39;",
	`"`, "&quot;",
)

// EscapeHTML substitutes &, <, >, ', " with their named/numeric entities
// in a single pass (strings.Replacer scans the source once, so the
// entities it writes are never themselves rescanned).
func EscapeHTML(s string) string {
	return htmlEscapeReplacer.Replace(s)
}
