package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsarchive/listing"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/newsfeed"
	"github.com/pevans/newsarchive/scraper"
)

// SourceLookup resolves source ids to configurations.
type SourceLookup interface {
	Get(id string) (scraper.SourceConfig, error)
	IDs() []string
}

// StateStore is the durable state the orchestrator reads and writes.
type StateStore interface {
	Checkpointer
	ResumePage(sourceID string) (page int, ok bool, err error)
	RecordRun(runID uuid.UUID, startedAt, finishedAt time.Time, summaryJSON string) error
}

// RunOptions are per-run overrides.
type RunOptions struct {
	// StartPages overrides the first page per source id.
	StartPages map[string]int
	// MaxPages caps pages per source when positive.
	MaxPages int
	// Resume starts sources from their stored checkpoint.
	Resume bool
}

// Totals aggregates a run.
type Totals struct {
	Sources   int `json:"sources"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Articles  int `json:"articles"`
	Saved     int `json:"saved"`
	Rejected  int `json:"rejected"`
}

// RunSummary is written once at the end of every run.
type RunSummary struct {
	RunID       uuid.UUID      `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Interrupted bool           `json:"interrupted"`
	Sources     []SourceResult `json:"sources"`
	Totals      Totals         `json:"totals"`
}

// Orchestrator runs sources one after another.
type Orchestrator struct {
	sources   SourceLookup
	deps      Deps
	state     StateStore
	settings  Settings
	outputDir string
	log       logging.Logger

	// newController is replaced in tests to control pacing.
	newController func(scraper.SourceConfig, Deps, Settings) *Controller
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Sources  SourceLookup
	Lister   listing.Lister
	Resolver Resolver
	Writer   newsfeed.PartitionWriter
	// State is optional; without it nothing is checkpointed.
	State    StateStore
	Settings Settings
	// OutputDir receives run_summary_<timestamp>.json. Empty disables the
	// file.
	OutputDir string
	Logger    logging.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	deps := Deps{
		Lister:   cfg.Lister,
		Resolver: cfg.Resolver,
		Writer:   cfg.Writer,
		Logger:   log,
	}
	if cfg.State != nil {
		deps.Checkpoints = cfg.State
	}
	return &Orchestrator{
		sources:       cfg.Sources,
		deps:          deps,
		state:         cfg.State,
		settings:      cfg.Settings,
		outputDir:     cfg.OutputDir,
		log:           log,
		newController: NewController,
	}
}

// Run crawls ids in order, or every registered source when ids is empty. A
// failing source never stops the run. After cancellation the remaining
// sources are reported as skipped. The returned error is only for failures
// to persist the summary.
func (o *Orchestrator) Run(ctx context.Context, ids []string, opts RunOptions) (*RunSummary, error) {
	if len(ids) == 0 {
		ids = o.sources.IDs()
	}

	summary := &RunSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Sources:   make([]SourceResult, 0, len(ids)),
	}
	log := o.log.With(logging.String("run_id", summary.RunID.String()))
	log.Info("starting run", logging.Strings("sources", ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			summary.Interrupted = true
			summary.Sources = append(summary.Sources, SourceResult{SourceID: id, Skipped: true, State: StateIdle})
			continue
		}

		result := o.runSource(ctx, id, opts, log)
		if result.Interrupted {
			summary.Interrupted = true
		}
		summary.Sources = append(summary.Sources, result)
	}

	summary.FinishedAt = time.Now()
	summary.Totals = totals(summary.Sources)
	log.Info("run finished",
		logging.Int("articles", summary.Totals.Articles),
		logging.Int("saved", summary.Totals.Saved),
		logging.Int("failed", summary.Totals.Failed),
		logging.Int("skipped", summary.Totals.Skipped),
		logging.Bool("interrupted", summary.Interrupted))

	if err := o.persist(summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (o *Orchestrator) runSource(ctx context.Context, id string, opts RunOptions, log logging.Logger) SourceResult {
	cfg, err := o.sources.Get(id)
	if err != nil {
		log.Error("skipping source", logging.String("source", id), logging.Err(err))
		return SourceResult{SourceID: id, State: StateIdle, Err: err, Error: err.Error()}
	}

	start, from := o.startPage(cfg, opts, log)
	cfg = cfg.WithStartPage(start)
	if opts.MaxPages > 0 {
		cfg = cfg.WithMaxPages(opts.MaxPages)
	}
	log.Info("crawling source",
		logging.String("source", id),
		logging.String("name", cfg.Name),
		logging.Int("start_page", start),
		logging.String("start_from", from))

	return o.newController(cfg, o.deps, o.settings).Run(ctx)
}

// startPage applies override > checkpoint > configured precedence.
func (o *Orchestrator) startPage(cfg scraper.SourceConfig, opts RunOptions, log logging.Logger) (int, string) {
	if page, ok := opts.StartPages[cfg.ID]; ok && page > 0 {
		return page, "override"
	}
	if opts.Resume && o.state != nil {
		page, ok, err := o.state.ResumePage(cfg.ID)
		if err != nil {
			log.Warn("failed to read checkpoint", logging.String("source", cfg.ID), logging.Err(err))
		} else if ok {
			return page, "checkpoint"
		}
	}
	return cfg.StartPage, "config"
}

func totals(results []SourceResult) Totals {
	t := Totals{Sources: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			t.Skipped++
		case r.Err != nil:
			t.Failed++
		case !r.Interrupted:
			t.Completed++
		}
		t.Articles += r.Articles
		t.Saved += r.Saved
		t.Rejected += r.RejectedTotal()
	}
	return t
}

func (o *Orchestrator) persist(summary *RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	var errs []error
	if o.outputDir != "" {
		if err := writeSummaryFile(o.outputDir, summary.StartedAt, data); err != nil {
			errs = append(errs, err)
		}
	}
	if o.state != nil {
		if err := o.state.RecordRun(summary.RunID, summary.StartedAt, summary.FinishedAt, string(data)); err != nil {
			errs = append(errs, fmt.Errorf("failed to record run: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to persist run summary: %w", errors.Join(errs...))
	}
	return nil
}

func writeSummaryFile(dir string, startedAt time.Time, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	target := filepath.Join(dir, fmt.Sprintf("run_summary_%s.json", startedAt.Format("20060102_150405")))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename run summary: %w", err)
	}
	return nil
}
