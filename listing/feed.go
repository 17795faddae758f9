package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/scraper"
	"github.com/sethvargo/go-retry"
)

// FeedLister reads paginated RSS/Atom listings, e.g. WordPress
// "/feed/?paged={page}".
type FeedLister struct {
	parser  *gofeed.Parser
	retries uint64
	backoff time.Duration
	log     logging.Logger
}

// NewFeedLister creates a FeedLister. A nil client uses http.DefaultClient.
func NewFeedLister(client *http.Client, userAgent string, retries uint64, backoff time.Duration, log logging.Logger) *FeedLister {
	fp := gofeed.NewParser()
	if client != nil {
		fp.Client = client
	}
	if userAgent == "" {
		userAgent = fetcher.DefaultUserAgent
	}
	fp.UserAgent = userAgent
	if log == nil {
		log = logging.NewNop()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &FeedLister{parser: fp, retries: retries, backoff: backoff, log: log}
}

// List implements Lister.
func (l *FeedLister) List(ctx context.Context, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error) {
	url := cfg.PageURL(page)

	var feed *gofeed.Feed
	b := retry.WithMaxRetries(l.retries, retry.NewExponential(l.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		f, err := l.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			if ctx.Err() != nil || isPermanent(err) {
				return err
			}
			l.log.Warn("feed fetch failed, retrying",
				logging.String("source", cfg.ID),
				logging.Int("page", page),
				logging.Err(err))
			return retry.RetryableError(err)
		}
		feed = f
		return nil
	})
	if err != nil {
		// WordPress answers 404 past the last feed page.
		var he gofeed.HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusNotFound || he.StatusCode == http.StatusGone) {
			return nil, ErrEmptyListing
		}
		return nil, &fetcher.FetchError{URL: url, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	if len(feed.Items) == 0 {
		return nil, ErrEmptyListing
	}

	stubs := make([]scraper.Stub, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := scraper.NormalizeSpace(item.Title)
		link := cfg.ResolveLink(item.Link, url)
		if title == "" || link == "" || cfg.IsSkipped(link) {
			continue
		}
		stub := scraper.Stub{
			Title:   title,
			Link:    link,
			Summary: scraper.Truncate(stripHTML(item.Description), scraper.SummaryLimit),
			Page:    page,
		}
		stub.TagKeyword(cfg)
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

// isPermanent reports HTTP client errors other than rate limiting.
func isPermanent(err error) bool {
	var he gofeed.HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500 && he.StatusCode != http.StatusTooManyRequests
}

// stripHTML returns the collapsed text content of an HTML fragment.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return scraper.NormalizeSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return scraper.NormalizeSpace(s)
	}
	return scraper.NormalizeSpace(doc.Text())
}

// Router dispatches to the lister matching a source's listing format.
type Router struct {
	HTML Lister
	Feed Lister
}

// List implements Lister.
func (r Router) List(ctx context.Context, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error) {
	if cfg.Format == scraper.FormatFeed {
		if r.Feed == nil {
			return nil, fmt.Errorf("source %s: no feed lister configured", cfg.ID)
		}
		return r.Feed.List(ctx, cfg, page)
	}
	if r.HTML == nil {
		return nil, fmt.Errorf("source %s: no html lister configured", cfg.ID)
	}
	return r.HTML.List(ctx, cfg, page)
}
