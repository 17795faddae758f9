// Package fetcher retrieves rendered pages and exposes them as queryable
// documents. Two implementations exist: a plain HTTP fetcher for static
// sites and a headless browser fetcher for pages that need JavaScript.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a fetch that did not finish within its deadline.
var ErrTimeout = errors.New("fetch timed out")

// WaitPolicy describes how long to wait for a page before reading it.
type WaitPolicy string

const (
	// WaitLoad waits for the load event. It is the default.
	WaitLoad WaitPolicy = "load"
	// WaitDOMContentLoaded returns once the DOM is parsed. Used for listings.
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"
	// WaitNetworkIdle waits for network activity to settle. Used for
	// article detail pages.
	WaitNetworkIdle WaitPolicy = "networkidle"
)

// Options controls a single fetch.
type Options struct {
	Wait    WaitPolicy
	Timeout time.Duration
	// Settle is an extra pause after the wait condition is met, giving
	// late scripts time to fill in content.
	Settle time.Duration
}

// ListingOptions is the policy for listing pages.
func ListingOptions() Options {
	return Options{Wait: WaitDOMContentLoaded, Timeout: 60 * time.Second, Settle: 2 * time.Second}
}

// DetailOptions is the policy for article detail pages.
func DetailOptions() Options {
	return Options{Wait: WaitNetworkIdle, Timeout: 30 * time.Second, Settle: 1500 * time.Millisecond}
}

// Fetcher loads a URL and returns its document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (Document, error)
	Close() error
}

// Document is a loaded page.
type Document interface {
	URL() string
	// Query returns the first element matching selector.
	Query(selector string) (Element, bool)
	QueryAll(selector string) []Element
	// HTML returns the serialized page.
	HTML() (string, error)
}

// Element is a node within a Document.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
	Query(selector string) (Element, bool)
	QueryAll(selector string) []Element
}

// FetchError wraps a failure to load URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// wrapFetchError normalizes context deadline failures to ErrTimeout.
func wrapFetchError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &FetchError{URL: url, Err: err}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
