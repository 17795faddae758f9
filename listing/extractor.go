// Package listing turns listing pages into article stubs.
package listing

import (
	"context"
	"errors"

	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/scraper"
)

// ErrEmptyListing means no element on the page matched the source's article
// selector. The crawl treats it as a missing page, not a failure.
var ErrEmptyListing = errors.New("no articles found on listing page")

// Lister produces the stubs for one listing page of a source.
type Lister interface {
	List(ctx context.Context, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error)
}

// Extractor pulls stubs out of a rendered listing document.
type Extractor struct{}

// Extract returns the page's stubs in document order. Candidates without a
// usable link and title, and links on the source's skip list, are dropped.
// Stubs are tagged against the source's keywords.
func (Extractor) Extract(doc fetcher.Document, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error) {
	candidates := doc.QueryAll(cfg.Selectors.Article)
	if len(candidates) == 0 {
		return nil, ErrEmptyListing
	}

	stubs := make([]scraper.Stub, 0, len(candidates))
	for _, elem := range candidates {
		title, link := linkAndTitle(elem, cfg, doc.URL())
		if link == "" || cfg.IsSkipped(link) {
			continue
		}

		summary := ""
		if s, ok := firstText(elem, cfg.Selectors.Summary); ok {
			summary = scraper.Truncate(s, scraper.SummaryLimit)
		}

		stub := scraper.Stub{
			Title:   title,
			Link:    link,
			Summary: summary,
			Page:    page,
		}
		stub.TagKeyword(cfg)
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

// linkAndTitle walks the link chain. The first link whose href resolves to a
// web URL wins; its text is the title, or the title chain supplies one when
// the link is bare.
func linkAndTitle(elem fetcher.Element, cfg scraper.SourceConfig, pageURL string) (title, link string) {
	for _, s := range cfg.Selectors.Link {
		a, ok := elem.Query(s)
		if !ok {
			continue
		}
		h, _ := a.Attr("href")
		l := cfg.ResolveLink(h, pageURL)
		if l == "" {
			continue
		}

		t := scraper.NormalizeSpace(a.Text())
		if t == "" {
			t, _ = firstText(elem, cfg.Selectors.Title)
		}
		if t != "" {
			return t, l
		}
	}
	return "", ""
}

// firstText returns the normalized text of the first selector in chain that
// yields non-empty text.
func firstText(elem fetcher.Element, chain []string) (string, bool) {
	for _, s := range chain {
		if e, ok := elem.Query(s); ok {
			if t := scraper.NormalizeSpace(e.Text()); t != "" {
				return t, true
			}
		}
	}
	return "", false
}
