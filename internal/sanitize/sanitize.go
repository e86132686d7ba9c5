// Package sanitize cleans model-supplied text before it is returned to an
// MCP client. Model, rule and mol names come from user files and end up in
// an assistant's context, so markup that could pose as instructions is
// removed while the chemistry notation is kept intact.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLabelLength bounds a sanitized label.
const MaxLabelLength = 200

var (
	// reTag matches XML/HTML tags and processing instructions.
	reTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reBackticks = regexp.MustCompile("`{2,}")
	reSpaces    = regexp.MustCompile(`\s{2,}`)
)

// Label returns s as a single line without control characters, markup
// tags or code fences, truncated to MaxLabelLength bytes.
//
// Species names such as "A(x=bound)-B(x=bound)" pass through unchanged.
func Label(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
	s = reTag.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "`")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > MaxLabelLength {
		s = truncate(s, MaxLabelLength) + "..."
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xc0 != 0x80 }
