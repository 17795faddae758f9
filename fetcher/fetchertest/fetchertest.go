// Package fetchertest provides an in-memory fetcher.Fetcher for tests.
package fetchertest

import (
	"context"
	"errors"
	"sync"

	"github.com/pevans/newsarchive/fetcher"
)

// ErrNotFound is returned for URLs with no registered page.
var ErrNotFound = errors.New("page not registered")

// Fetcher serves canned HTML by URL and records every request.
type Fetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  []string
	closed bool
	// OnFetch, when set, runs before each fetch is served.
	OnFetch func(url string)
}

// New returns an empty Fetcher.
func New() *Fetcher {
	return &Fetcher{pages: make(map[string]string), errs: make(map[string]error)}
}

// Page registers html for url.
func (f *Fetcher) Page(url, html string) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = html
	return f
}

// Fail makes fetches of url return err.
func (f *Fetcher) Fail(url string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	return f
}

// Fetch implements fetcher.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, url string, _ fetcher.Options) (fetcher.Document, error) {
	if f.OnFetch != nil {
		f.OnFetch(url)
	}

	f.mu.Lock()
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	err := f.errs[url]
	f.mu.Unlock()

	if err != nil {
		return nil, &fetcher.FetchError{URL: url, Err: err}
	}
	if !ok {
		return nil, &fetcher.FetchError{URL: url, Err: ErrNotFound}
	}
	return fetcher.NewDocumentFromString(html, url)
}

// Calls returns the URLs fetched so far, in order.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *Fetcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close implements fetcher.Fetcher.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
