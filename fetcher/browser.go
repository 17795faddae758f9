package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pevans/newsarchive/logging"
)

// BrowserConfig configures a BrowserFetcher.
type BrowserConfig struct {
	// RemoteURL connects to an already running Chrome instead of launching
	// one.
	RemoteURL string
	Headless  bool
	// BinPath overrides the Chrome binary the launcher uses.
	BinPath string
	Logger  logging.Logger
}

// BrowserFetcher renders pages in a headless Chrome driven by rod. A single
// stealth page is opened lazily and reused for every fetch, so calls are
// serialized.
type BrowserFetcher struct {
	cfg BrowserConfig
	log logging.Logger

	mu      sync.Mutex
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowserFetcher creates a BrowserFetcher. Chrome is not started until
// the first Fetch.
func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &BrowserFetcher{cfg: cfg, log: log}
}

func (f *BrowserFetcher) start() error {
	if f.page != nil {
		return nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(f.cfg.Headless)
		if f.cfg.BinPath != "" {
			l = l.Bin(f.cfg.BinPath)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		f.lnch = l
		f.log.Info("launched local chrome", logging.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		f.cleanup()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	f.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		f.cleanup()
		return fmt.Errorf("failed to open page: %w", err)
	}
	f.page = page
	return nil
}

// Fetch navigates the shared page to url and snapshots the rendered DOM.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, opts Options) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.start(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	navCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	page := f.page.Context(navCtx)
	wait := page.WaitNavigation(lifecycleEvent(opts.Wait))
	if err := page.Navigate(url); err != nil {
		return nil, wrapFetchError(url, err)
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, wrapFetchError(url, err)
	}

	if opts.Settle > 0 {
		if err := Sleep(navCtx, opts.Settle); err != nil {
			return nil, wrapFetchError(url, err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, wrapFetchError(url, err)
	}
	return NewDocumentFromString(html, url)
}

func lifecycleEvent(w WaitPolicy) proto.PageLifecycleEventName {
	switch w {
	case WaitNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	case WaitDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

// Close shuts down the page and browser, and kills a locally launched
// Chrome.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanup()
}

func (f *BrowserFetcher) cleanup() error {
	var errs []error
	if f.page != nil {
		errs = append(errs, f.page.Close())
		f.page = nil
	}
	if f.browser != nil {
		errs = append(errs, f.browser.Close())
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return errors.Join(errs...)
}
