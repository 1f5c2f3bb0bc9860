// Package sanitize cleans user-typed text before it is sent to the server.
//
// Questions and filenames are often pasted from spreadsheets or chat tools and
// carry CRLF line endings or invisible Unicode characters that the server would
// treat as part of the value.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n+`)

	invisible = strings.NewReplacer(
		"\u200B", "", // zero-width space
		"\u200C", "", // zero-width non-joiner
		"\u200D", "", // zero-width joiner
		"\uFEFF", "", // BOM
		"\u00AD", "", // soft hyphen
		"\u2060", "", // word joiner
		"\u180E", "", // Mongolian vowel separator
	)
)

// Text normalizes free text such as a chat question: line endings become LF,
// invisible characters are dropped, runs of blanks and of newlines collapse to
// one, and the result is trimmed.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisible.Replace(s)
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Field drops invisible characters and trims. Inner spacing is kept, so it is
// safe for filenames and identifiers.
func Field(s string) string {
	if s == "" {
		return s
	}
	return strings.TrimSpace(invisible.Replace(s))
}
