// Package filter rejects listing entries that are not real articles:
// podcast episodes, sponsored links, stubs, and out-of-sequence items that
// sites inject into their history pages.
package filter

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pevans/newsarchive/scraper"
)

// Reason names the rule that rejected a candidate.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonPodcastTitle Reason = "podcast_title"
	ReasonAdLink       Reason = "ad_link"
	ReasonShortContent Reason = "short_content"
	ReasonBoilerplate  Reason = "boilerplate"
	ReasonDateJump     Reason = "date_jump"

	// ReasonKeyword is applied before resolution, to stubs whose title and
	// summary carry none of the source's keywords.
	ReasonKeyword Reason = "keyword_mismatch"
)

// Rules are the tunable thresholds.
type Rules struct {
	TitlePrefixes      []string      `mapstructure:"title_prefixes"`
	LinkPatterns       []string      `mapstructure:"link_patterns"`
	MinContentLength   int           `mapstructure:"min_content_length"`
	BoilerplatePhrases []string      `mapstructure:"boilerplate_phrases"`
	MaxGap             time.Duration `mapstructure:"max_gap"`
}

// DefaultRules returns the rules tuned for the built-in sources.
func DefaultRules() Rules {
	return Rules{
		TitlePrefixes:      []string{"EP."},
		LinkPatterns:       []string{"news-list?source=", "/ep-"},
		MinContentLength:   300,
		BoilerplatePhrases: []string{"保證學不到東西的不負責任區塊鏈時事雜談"},
		MaxGap:             180 * 24 * time.Hour,
	}
}

// WithDefaults returns r with unset fields taken from DefaultRules. A nil
// list or a zero threshold counts as unset; an empty non-nil list disables
// that rule.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.TitlePrefixes == nil {
		r.TitlePrefixes = d.TitlePrefixes
	}
	if r.LinkPatterns == nil {
		r.LinkPatterns = d.LinkPatterns
	}
	if r.MinContentLength <= 0 {
		r.MinContentLength = d.MinContentLength
	}
	if r.BoilerplatePhrases == nil {
		r.BoilerplatePhrases = d.BoilerplatePhrases
	}
	if r.MaxGap <= 0 {
		r.MaxGap = d.MaxGap
	}
	return r
}

// Candidate is the part of a resolved article the rules look at.
type Candidate struct {
	Title   string
	Link    string
	Content string
	Date    string
}

// Verdict is the outcome of Check.
type Verdict struct {
	Noise  bool
	Reason Reason
}

// Filter applies Rules and tracks the date of the last accepted article. It
// is not safe for concurrent use; each source crawl owns its own Filter.
type Filter struct {
	rules    Rules
	lastDate *time.Time
}

// New creates a Filter.
func New(rules Rules) *Filter {
	return &Filter{rules: rules}
}

// Check classifies c. Rules are evaluated in order and the first match
// wins. The date continuity rule only applies when crawling forward, since a
// backward crawl over sparse history legitimately jumps.
func (f *Filter) Check(c Candidate, dir scraper.Direction) Verdict {
	for _, p := range f.rules.TitlePrefixes {
		if p != "" && strings.HasPrefix(c.Title, p) {
			return noise(ReasonPodcastTitle)
		}
	}

	link := strings.ToLower(c.Link)
	for _, p := range f.rules.LinkPatterns {
		if p != "" && strings.Contains(link, strings.ToLower(p)) {
			return noise(ReasonAdLink)
		}
	}

	if utf8.RuneCountInString(c.Content) < f.rules.MinContentLength {
		return noise(ReasonShortContent)
	}

	for _, p := range f.rules.BoilerplatePhrases {
		if p != "" && strings.Contains(c.Content, p) {
			return noise(ReasonBoilerplate)
		}
	}

	date, ok := ParseDate(c.Date)
	if dir == scraper.Forward && ok && f.lastDate != nil && f.rules.MaxGap > 0 {
		if absDuration(date.Sub(*f.lastDate)) > f.rules.MaxGap {
			return noise(ReasonDateJump)
		}
	}

	if ok {
		f.lastDate = &date
	}
	return Verdict{}
}

// LastDate returns the date of the last accepted article, if known.
func (f *Filter) LastDate() (time.Time, bool) {
	if f.lastDate == nil {
		return time.Time{}, false
	}
	return *f.lastDate, true
}

// Reset forgets the last accepted date.
func (f *Filter) Reset() {
	f.lastDate = nil
}

func noise(r Reason) Verdict {
	return Verdict{Noise: true, Reason: r}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate reads the date formats records carry. Only the calendar day is
// kept.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	candidates := []string{s}
	if i := strings.IndexAny(s, " T"); i > 0 {
		candidates = append(candidates, s[:i])
	}
	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}
