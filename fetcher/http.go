package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpix/uarand"
	"github.com/pevans/newsarchive/logging"
	"github.com/sethvargo/go-retry"
)

// DefaultUserAgent identifies the archiver when random agents are off.
const DefaultUserAgent = "newsarchive/1.0 (news archive crawler)"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 10 << 20

// HTTPFetcher loads pages with plain GET requests. It does not run
// JavaScript, so Wait and Settle options are ignored.
type HTTPFetcher struct {
	client          *http.Client
	userAgent       string
	randomUserAgent bool
	retries         uint64
	backoff         time.Duration
	log             logging.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithUserAgent sets a fixed User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithRandomUserAgent picks a fresh browser User-Agent per request.
func WithRandomUserAgent(enabled bool) HTTPOption {
	return func(f *HTTPFetcher) { f.randomUserAgent = enabled }
}

// WithRetries sets how many times a transient failure is retried, and the
// initial backoff between attempts.
func WithRetries(n uint64, backoff time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.retries = n
		if backoff > 0 {
			f.backoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) HTTPOption {
	return func(f *HTTPFetcher) { f.log = l }
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
		retries:   2,
		backoff:   time.Second,
		log:       logging.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Temporary reports whether another attempt could succeed: server errors and
// rate limiting.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Fetch GETs url and parses the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (Document, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var doc Document
	backoff := retry.WithMaxRetries(f.retries, retry.NewExponential(f.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, err := f.get(ctx, url)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			f.log.Debug("fetch failed, retrying", logging.String("url", url), logging.Err(err))
			return retry.RetryableError(err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, wrapFetchError(url, err)
	}
	return doc, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	ua := f.userAgent
	if f.randomUserAgent {
		ua = uarand.GetRandom()
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return NewDocument(io.LimitReader(resp.Body, maxBodyBytes), url)
}

// Close drops idle keep-alive connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
