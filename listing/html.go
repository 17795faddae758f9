package listing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/scraper"
	"github.com/sethvargo/go-retry"
)

// HTMLLister fetches listing pages through a Fetcher and extracts stubs.
type HTMLLister struct {
	fetcher   fetcher.Fetcher
	extractor Extractor
	retries   uint64
	backoff   time.Duration
	log       logging.Logger
}

// NewHTMLLister creates an HTMLLister that retries failed fetches up to
// retries times with exponential backoff starting at backoff.
func NewHTMLLister(f fetcher.Fetcher, retries uint64, backoff time.Duration, log logging.Logger) *HTMLLister {
	if log == nil {
		log = logging.NewNop()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &HTMLLister{fetcher: f, retries: retries, backoff: backoff, log: log}
}

// List implements Lister.
func (l *HTMLLister) List(ctx context.Context, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error) {
	url := cfg.PageURL(page)

	var doc fetcher.Document
	b := retry.WithMaxRetries(l.retries, retry.NewExponential(l.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		d, err := l.fetcher.Fetch(ctx, url, fetcher.ListingOptions())
		if err != nil {
			var se *fetcher.StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return err
			}
			var fe *fetcher.FetchError
			if errors.As(err, &fe) && ctx.Err() == nil {
				l.log.Warn("listing fetch failed, retrying",
					logging.String("source", cfg.ID),
					logging.Int("page", page),
					logging.Err(err))
				return retry.RetryableError(err)
			}
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		// Sites answer 404 or 410 past the last history page.
		var se *fetcher.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone) {
			return nil, ErrEmptyListing
		}
		return nil, err
	}

	return l.extractor.Extract(doc, cfg, page)
}
