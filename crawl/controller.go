// Package crawl drives a source's paginated history through listing,
// resolution, filtering and persistence, and runs many sources in sequence.
package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsarchive/fetcher"
	"github.com/pevans/newsarchive/filter"
	"github.com/pevans/newsarchive/listing"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/newsfeed"
	"github.com/pevans/newsarchive/resolve"
	"github.com/pevans/newsarchive/scraper"
	"github.com/sethvargo/go-retry"
)

// State is the controller's lifecycle stage.
type State string

const (
	StateIdle     State = "idle"
	StatePaging   State = "paging"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// Resolver turns a stub into article content and a date.
type Resolver interface {
	Resolve(ctx context.Context, stub scraper.Stub, cfg scraper.SourceConfig) resolve.Resolution
}

// Checkpointer persists resume points.
type Checkpointer interface {
	SaveCheckpoint(sourceID string, nextPage int) error
	RecordResult(sourceID string, completed bool, articles, saved int, crawlErr error) error
}

// Settings tune pacing and batching. Zero values are replaced by defaults
// in NewController, except the delays which may legitimately be zero. Unset
// filter fields fall back to filter.DefaultRules one by one.
type Settings struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PageDelay     time.Duration `mapstructure:"page_delay"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	CooldownEvery int           `mapstructure:"cooldown_every"`
	DrainAttempts uint64        `mapstructure:"drain_attempts"`
	DrainBackoff  time.Duration `mapstructure:"drain_backoff"`
	Filter        filter.Rules  `mapstructure:"filter"`
}

// DefaultSettings returns the pacing used against the built-in sources.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:     newsfeed.DefaultBatchSize,
		PageDelay:     time.Second,
		Cooldown:      3 * time.Second,
		CooldownEvery: 5,
		DrainAttempts: 3,
		DrainBackoff:  time.Second,
		Filter:        filter.DefaultRules(),
	}
}

// Deps are the collaborators a controller needs.
type Deps struct {
	Lister      listing.Lister
	Resolver    Resolver
	Writer      newsfeed.PartitionWriter
	Checkpoints Checkpointer
	Logger      logging.Logger
}

// SourceResult summarizes one source crawl.
type SourceResult struct {
	SourceID      string         `json:"source_id"`
	Name          string         `json:"name"`
	State         State          `json:"state"`
	StartPage     int            `json:"start_page"`
	LastPage      int            `json:"last_page"`
	PagesPlanned  int            `json:"pages_planned"`
	PagesVisited  int            `json:"pages_visited"`
	EmptyPages    int            `json:"empty_pages"`
	FailedPages   int            `json:"failed_pages"`
	Articles      int            `json:"articles"`
	Saved         int            `json:"saved"`
	Duplicates    int            `json:"duplicates"`
	FetchFailures int            `json:"fetch_failures"`
	Rejected      map[string]int `json:"rejected"`
	Partitions    []string       `json:"partitions,omitempty"`
	Interrupted   bool           `json:"interrupted"`
	Skipped       bool           `json:"skipped,omitempty"`
	Error         string         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration"`
	Err           error          `json:"-"`
}

// RejectedTotal sums rejections across reasons.
func (r SourceResult) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// Controller crawls one source. It owns the source's batch, filter and
// seen-link set, and is used for a single Run.
type Controller struct {
	cfg         scraper.SourceConfig
	lister      listing.Lister
	resolver    Resolver
	batch       *newsfeed.Batch
	filter      *filter.Filter
	checkpoints Checkpointer
	settings    Settings
	log         logging.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	state State
	seen  map[string]struct{}
}

// NewController creates a controller for cfg.
func NewController(cfg scraper.SourceConfig, deps Deps, settings Settings) *Controller {
	defaults := DefaultSettings()
	if settings.BatchSize < 1 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.CooldownEvery < 1 {
		settings.CooldownEvery = defaults.CooldownEvery
	}
	if settings.DrainAttempts < 1 {
		settings.DrainAttempts = defaults.DrainAttempts
	}
	if settings.DrainBackoff <= 0 {
		settings.DrainBackoff = defaults.DrainBackoff
	}
	settings.Filter = settings.Filter.WithDefaults()

	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.With(logging.String("source", cfg.ID))

	return &Controller{
		cfg:         cfg,
		lister:      deps.Lister,
		resolver:    deps.Resolver,
		batch:       newsfeed.NewBatch(deps.Writer, cfg.Name, cfg.ID, settings.BatchSize, log),
		filter:      filter.New(settings.Filter),
		checkpoints: deps.Checkpoints,
		settings:    settings,
		log:         log,
		sleep:       fetcher.Sleep,
		now:         time.Now,
		state:       StateIdle,
		seen:        make(map[string]struct{}),
	}
}

// State returns the current lifecycle stage.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transition(s State) {
	c.log.Info("crawl state changed",
		logging.String("from", string(c.state)),
		logging.String("to", string(s)))
	c.state = s
}

// Run crawls the configured page range. Cancelling ctx stops the crawl
// after the article in progress; buffered records are then flushed before
// Run returns.
func (c *Controller) Run(ctx context.Context) SourceResult {
	start := c.now()
	result := SourceResult{
		SourceID:  c.cfg.ID,
		Name:      c.cfg.Name,
		StartPage: c.cfg.StartPage,
		Rejected:  make(map[string]int),
	}

	pages := scraper.PageRange(c.cfg.Direction, c.cfg.StartPage, c.cfg.EndPage, c.cfg.MaxPages)
	result.PagesPlanned = len(pages)

	c.transition(StatePaging)
	c.log.Info("starting crawl",
		logging.Int("start_page", c.cfg.StartPage),
		logging.Int("end_page", c.cfg.EndPage),
		logging.String("direction", string(c.cfg.Direction)),
		logging.Int("pages", len(pages)))

	// resume is the first page not yet known to be fully durable.
	resume := 0
	for i, page := range pages {
		if ctx.Err() != nil {
			result.Interrupted = true
			resume = page
			break
		}

		complete := c.crawlPage(ctx, page, &result)
		if !complete {
			result.Interrupted = true
			resume = page
			break
		}
		result.PagesVisited++
		result.LastPage = page

		next := 0
		if i+1 < len(pages) {
			next = pages[i+1]
		}
		resume = next
		if c.batch.Len() == 0 && next > 0 {
			c.checkpoint(next)
		}

		if next == 0 {
			break
		}
		if err := c.sleep(ctx, c.pause(result.PagesVisited)); err != nil {
			result.Interrupted = true
			break
		}
	}

	c.transition(StateDraining)
	if err := c.drain(ctx); err != nil {
		result.Err = err
		result.Error = err.Error()
	} else if result.Interrupted && resume > 0 {
		c.checkpoint(resume)
	}

	result.Saved = c.batch.Saved()
	result.Partitions = c.batch.Paths()
	result.Duration = c.now().Sub(start)
	c.transition(StateDone)
	result.State = c.state

	if c.checkpoints != nil {
		completed := !result.Interrupted && result.Err == nil
		if err := c.checkpoints.RecordResult(c.cfg.ID, completed, result.Articles, result.Saved, result.Err); err != nil {
			c.log.Warn("failed to record crawl result", logging.Err(err))
		}
	}

	c.log.Info("crawl finished",
		logging.Int("pages_visited", result.PagesVisited),
		logging.Int("articles", result.Articles),
		logging.Int("saved", result.Saved),
		logging.Int("rejected", result.RejectedTotal()),
		logging.Bool("interrupted", result.Interrupted),
		logging.Duration("duration", result.Duration))
	return result
}

// pause is the delay after the n-th processed page.
func (c *Controller) pause(n int) time.Duration {
	if n%c.settings.CooldownEvery == 0 {
		return c.settings.Cooldown
	}
	return c.settings.PageDelay
}

// crawlPage processes one listing page. It returns false when the crawl was
// interrupted before the page was finished.
func (c *Controller) crawlPage(ctx context.Context, page int, result *SourceResult) bool {
	log := c.log.With(logging.Int("page", page))

	stubs, err := c.lister.List(ctx, c.cfg, page)
	switch {
	case errors.Is(err, listing.ErrEmptyListing):
		result.EmptyPages++
		log.Warn("no articles found on page")
		return true
	case err != nil && ctx.Err() != nil:
		return false
	case err != nil:
		result.FailedPages++
		log.Error("failed to load listing page", logging.Err(err))
		return true
	}

	log.Info("found articles", logging.Int("count", len(stubs)))

	// In-flight work finishes even after a stop signal.
	work := context.WithoutCancel(ctx)
	for idx, stub := range stubs {
		if ctx.Err() != nil {
			return false
		}

		if _, dup := c.seen[stub.Link]; dup {
			result.Duplicates++
			continue
		}
		c.seen[stub.Link] = struct{}{}

		if stub.OffTopic {
			result.Rejected[string(filter.ReasonKeyword)]++
			log.Debug("skipping article without keywords",
				logging.String("title", scraper.Truncate(stub.Title, 50)))
			continue
		}

		res := c.resolver.Resolve(work, stub, c.cfg)
		if res.Status == resolve.FetchFailed {
			result.FetchFailures++
			log.Warn("skipping unresolved article",
				logging.String("link", stub.Link),
				logging.Err(res.Err))
			continue
		}

		rec := newsfeed.ArticleRecord{
			ID:          uuid.New(),
			Title:       stub.Title,
			Link:        stub.Link,
			Summary:     stub.Summary,
			Content:     res.Content,
			Date:        res.Date,
			Year:        res.Year,
			Source:      c.cfg.Name,
			SourceID:    c.cfg.ID,
			PageNum:     page,
			Keyword:     stub.Keyword,
			ScrapedAt:   c.now(),
			ContentFrom: res.ContentFrom,
			DateFrom:    res.DateFrom,
		}

		verdict := c.filter.Check(filter.Candidate{
			Title:   rec.Title,
			Link:    rec.Link,
			Content: rec.Content,
			Date:    rec.Date,
		}, c.cfg.Direction)
		if verdict.Noise {
			result.Rejected[string(verdict.Reason)]++
			log.Info("rejected article",
				logging.String("reason", string(verdict.Reason)),
				logging.String("title", scraper.Truncate(rec.Title, 50)))
			continue
		}

		result.Articles++
		log.Debug("accepted article",
			logging.Int("index", idx+1),
			logging.Int("of", len(stubs)),
			logging.String("year", rec.PartitionKey()))

		flushed, err := c.batch.Add(work, rec)
		if err != nil {
			log.Error("automatic flush failed", logging.Err(err))
		} else if flushed {
			c.checkpoint(page)
		}
	}
	return true
}

// drain force-flushes the batch, retrying with backoff.
func (c *Controller) drain(ctx context.Context) error {
	if c.batch.Len() == 0 {
		return nil
	}
	c.log.Info("flushing remaining articles", logging.Int("count", c.batch.Len()))

	b := retry.WithMaxRetries(c.settings.DrainAttempts-1, retry.NewExponential(c.settings.DrainBackoff))
	return retry.Do(context.WithoutCancel(ctx), b, func(ctx context.Context) error {
		if _, err := c.batch.Flush(ctx, true); err != nil {
			c.log.Warn("flush failed, retrying", logging.Err(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (c *Controller) checkpoint(page int) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.SaveCheckpoint(c.cfg.ID, page); err != nil {
		c.log.Warn("failed to save checkpoint", logging.Int("page", page), logging.Err(err))
	}
}
