// Package resolve fetches an article's detail page and extracts its body and
// publish date.
package resolve

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/scraper"
)

// Status tells a caller whether the detail page could be loaded at all.
type Status int

const (
	Resolved Status = iota
	FetchFailed
)

func (s Status) String() string {
	if s == FetchFailed {
		return "fetch_failed"
	}
	return "resolved"
}

// Content provenance.
const (
	FromSelector    = "selector"
	FromGeneric     = "generic"
	FromParagraphs  = "paragraphs"
	FromReadability = "readability"
	FromNone        = "none"
)

// Date provenance.
const (
	DateFromMeta    = "meta"
	DateFromElement = "element"
	DateFromURL     = "url"
)

// minContentLength is the length a selector's text must exceed to be taken
// as the article body.
const minContentLength = 100

// minParagraphLength drops captions and bylines from paragraph fallback.
const minParagraphLength = 20

var genericContentSelectors = []string{
	".entry-content",
	".post-content",
	".article-content",
	"article .content",
	"main article",
}

const paragraphSelector = "article p, .entry-content p, .post-content p"

// Resolution is the outcome of resolving one stub. Resolve never fails; a
// page that could not be loaded yields FetchFailed with empty fields.
type Resolution struct {
	Content     string
	Date        string
	Year        *int
	ContentFrom string
	DateFrom    string
	Status      Status
	Err         error
}

// Resolver loads detail pages through a Fetcher.
type Resolver struct {
	fetcher fetcher.Fetcher
	opts    fetcher.Options
	log     logging.Logger
}

// New creates a Resolver using the detail-page fetch policy.
func New(f fetcher.Fetcher, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNop()
	}
	return &Resolver{fetcher: f, opts: fetcher.DetailOptions(), log: log}
}

// Resolve fetches stub.Link and extracts content and date.
func (r *Resolver) Resolve(ctx context.Context, stub scraper.Stub, cfg scraper.SourceConfig) Resolution {
	doc, err := r.fetcher.Fetch(ctx, stub.Link, r.opts)
	if err != nil {
		r.log.Warn("failed to fetch article",
			logging.String("source", cfg.ID),
			logging.String("link", stub.Link),
			logging.Err(err))
		return Resolution{
			ContentFrom: FromNone,
			DateFrom:    FromNone,
			Status:      FetchFailed,
			Err:         err,
		}
	}

	res := ResolveDocument(doc, stub.Link, cfg)
	r.log.Debug("resolved article",
		logging.String("link", stub.Link),
		logging.String("content_from", res.ContentFrom),
		logging.String("date_from", res.DateFrom),
		logging.Int("content_length", utf8.RuneCountInString(res.Content)))
	return res
}

// ResolveDocument extracts content and date from an already loaded page.
func ResolveDocument(doc fetcher.Document, link string, cfg scraper.SourceConfig) Resolution {
	res := Resolution{Status: Resolved}
	res.Content, res.ContentFrom = extractContent(doc, cfg.Selectors.Content)

	if d, ok := dateFromMeta(doc); ok {
		res.Date, res.Year, res.DateFrom = d.text, d.year, DateFromMeta
	} else if d, ok := dateFromElement(doc); ok {
		res.Date, res.Year, res.DateFrom = d.text, d.year, DateFromElement
	} else if d, ok := dateFromLink(link); ok {
		res.Date, res.Year, res.DateFrom = d.text, d.year, DateFromURL
	} else {
		res.DateFrom = FromNone
	}
	return res
}

func extractContent(doc fetcher.Document, primary []string) (string, string) {
	if text, ok := firstLongText(doc, primary); ok {
		return text, FromSelector
	}
	if text, ok := firstLongText(doc, genericContentSelectors); ok {
		return text, FromGeneric
	}

	var parts []string
	for _, p := range doc.QueryAll(paragraphSelector) {
		text := strings.TrimSpace(p.Text())
		if utf8.RuneCountInString(text) > minParagraphLength {
			parts = append(parts, text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n"), FromParagraphs
	}

	if text := readabilityText(doc); text != "" {
		return text, FromReadability
	}
	return "", FromNone
}

func firstLongText(doc fetcher.Document, selectors []string) (string, bool) {
	for _, sel := range selectors {
		elem, ok := doc.Query(sel)
		if !ok {
			continue
		}
		text := strings.TrimSpace(elem.Text())
		if utf8.RuneCountInString(text) > minContentLength {
			return text, true
		}
	}
	return "", false
}

func readabilityText(doc fetcher.Document) string {
	html, err := doc.HTML()
	if err != nil || strings.TrimSpace(html) == "" {
		return ""
	}
	pageURL, err := url.Parse(doc.URL())
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
