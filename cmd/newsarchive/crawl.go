package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pevans/newsarchive/config"
	"github.com/pevans/newsarchive/crawl"
	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/listing"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/resolve"
	"github.com/spf13/cobra"
)

// retryBackoff is the initial wait between listing and fetch retries.
const retryBackoff = time.Second

func newCrawlCommand(root *rootOptions) *cobra.Command {
	var (
		startPages []string
		maxPages   int
		resume     bool
		browser    bool
	)

	cmd := &cobra.Command{
		Use:   "crawl [source-id...]",
		Short: "Crawl sources (all registered sources when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseStartPages(startPages)
			if err != nil {
				return err
			}
			if maxPages < 0 {
				return fmt.Errorf("--max-pages must not be negative")
			}

			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			for id := range overrides {
				if _, err := a.registry.Get(id); err != nil {
					a.log.Warn("start page override for unknown source", logging.String("source", id))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := a.cfg.Fetcher.Mode
			if browser {
				mode = config.ModeBrowser
			}
			f := newFetcher(a.cfg.Fetcher, mode, a.log)
			defer func() {
				if err := f.Close(); err != nil {
					a.log.Warn("failed to close fetcher", logging.Err(err))
				}
			}()

			partitions, err := a.openPartitions()
			if err != nil {
				return err
			}
			state, err := a.openState()
			if err != nil {
				return err
			}
			defer state.Close()

			orch := crawl.NewOrchestrator(crawl.OrchestratorConfig{
				Sources: a.registry,
				Lister: listing.Router{
					HTML: listing.NewHTMLLister(f, a.cfg.Fetcher.Retries, retryBackoff, a.log),
					Feed: listing.NewFeedLister(nil, a.cfg.Fetcher.UserAgent, a.cfg.Fetcher.Retries, retryBackoff, a.log),
				},
				Resolver:  resolve.New(f, a.log),
				Writer:    partitions,
				State:     state,
				Settings:  a.cfg.Crawl,
				OutputDir: a.cfg.Storage.OutputDir,
				Logger:    a.log,
			})

			summary, runErr := orch.Run(ctx, args, crawl.RunOptions{
				StartPages: overrides,
				MaxPages:   maxPages,
				Resume:     resume,
			})
			if summary != nil {
				printRunSummary(cmd.OutOrStdout(), summary)
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVar(&startPages, "start-page", nil, "start page override as <source-id>=<page> (repeatable)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop each source after this many pages (0 = no limit)")
	cmd.Flags().BoolVar(&resume, "resume", false, "start each source from its stored checkpoint")
	cmd.Flags().BoolVar(&browser, "browser", false, "render pages in headless Chrome")
	return cmd
}

// newFetcher builds the fetcher for mode.
func newFetcher(cfg config.FetcherConfig, mode string, log logging.Logger) fetcher.Fetcher {
	if mode == config.ModeBrowser {
		return fetcher.NewBrowserFetcher(fetcher.BrowserConfig{
			RemoteURL: cfg.RemoteURL,
			Headless:  cfg.Headless,
			BinPath:   cfg.BinPath,
			Logger:    log,
		})
	}
	return fetcher.NewHTTPFetcher(
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithRandomUserAgent(cfg.RandomUserAgent),
		fetcher.WithRetries(cfg.Retries, retryBackoff),
		fetcher.WithLogger(log),
	)
}

// parseStartPages parses repeated id=page values.
func parseStartPages(values []string) (map[string]int, error) {
	overrides := make(map[string]int, len(values))
	for _, value := range values {
		id, pageStr, ok := strings.Cut(value, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --start-page %q: expected <source-id>=<page>", value)
		}
		page, err := strconv.Atoi(strings.TrimSpace(pageStr))
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid --start-page %q: page must be a positive integer", value)
		}
		overrides[id] = page
	}
	return overrides, nil
}
