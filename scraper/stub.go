package scraper

import (
	"strings"
	"unicode/utf8"
)

// SummaryLimit caps a stub's summary, in characters.
const SummaryLimit = 200

// Stub is a listing entry waiting to be resolved against its detail page.
// Keyword is the source keyword found in the title or summary; OffTopic is
// set when the source has keywords and none of them appear.
type Stub struct {
	Title    string
	Link     string
	Summary  string
	Page     int
	Keyword  string
	OffTopic bool
}

// TagKeyword matches the stub's title and summary against cfg's keywords.
func (s *Stub) TagKeyword(cfg SourceConfig) {
	kw, ok := cfg.MatchKeyword(s.Title + " " + s.Summary)
	s.Keyword = kw
	s.OffTopic = !ok
}

// NormalizeSpace collapses runs of whitespace into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
