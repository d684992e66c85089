package ooo

import (
	"html"
	"regexp"
	"strings"
)

var (
	blockTag   = regexp.MustCompile(`(?i)<\s*(br|p|div)\s*/?>`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
	newlineRun = regexp.MustCompile(`\n+`)
)

// StripMarkup removes HTML from s while keeping its line structure.
func StripMarkup(s string) string {
	if s == "" {
		return s
	}
	s = html.UnescapeString(s)
	s = blockTag.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = newlineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
