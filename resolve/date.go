package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/newsarchive/fetcher"
)

const dateLayout = "2006-01-02"

var (
	isoDatePattern  = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
	yearPattern     = regexp.MustCompile(`20\d{2}`)
	urlDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`),
		regexp.MustCompile(`/(\d{4})-(\d{2})-(\d{2})/`),
		regexp.MustCompile(`/(\d{4})(\d{2})(\d{2})/`),
	}
)

type dateResult struct {
	text string
	year *int
}

func fullDate(y, m, d string) (dateResult, bool) {
	s := y + "-" + m + "-" + d
	if _, err := time.Parse(dateLayout, s); err != nil {
		return dateResult{}, false
	}
	year, _ := strconv.Atoi(y)
	return dateResult{text: s, year: &year}, true
}

// dateFromMeta reads the Open Graph published time.
func dateFromMeta(doc fetcher.Document) (dateResult, bool) {
	meta, ok := doc.Query(`meta[property="article:published_time"]`)
	if !ok {
		return dateResult{}, false
	}
	content, _ := meta.Attr("content")
	if m := isoDatePattern.FindStringSubmatch(content); m != nil {
		return fullDate(m[1], m[2], m[3])
	}
	return dateResult{}, false
}

// dateFromElement reads the first visible date element. A parseable
// datetime attribute gives a full date; otherwise the text must at least
// contain a year.
func dateFromElement(doc fetcher.Document) (dateResult, bool) {
	elem, ok := doc.Query("time, .post-date, .entry-date, [datetime]")
	if !ok {
		return dateResult{}, false
	}

	if attr, ok := elem.Attr("datetime"); ok {
		if m := isoDatePattern.FindStringSubmatch(attr); m != nil {
			if d, ok := fullDate(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
	}

	text := strings.TrimSpace(elem.Text())
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if d, ok := fullDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if y := yearPattern.FindString(text); y != "" {
		year, _ := strconv.Atoi(y)
		return dateResult{text: text, year: &year}, true
	}
	return dateResult{}, false
}

// DateFromLink finds a /YYYY/MM/DD/, /YYYY-MM-DD/ or /YYYYMMDD/ segment in
// link and returns it as YYYY-MM-DD with its year.
func DateFromLink(link string) (date string, year *int, ok bool) {
	d, ok := dateFromLink(link)
	return d.text, d.year, ok
}

func dateFromLink(link string) (dateResult, bool) {
	for _, p := range urlDatePatterns {
		for _, m := range p.FindAllStringSubmatch(link, -1) {
			if d, ok := fullDate(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
	}
	return dateResult{}, false
}
