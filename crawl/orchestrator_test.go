package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pevans/newsarchive/scraper"
	"github.com/pevans/newsarchive/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: a registry with two sources
func createTestRegistry(t *testing.T) *sources.Registry {
	a := createTestSource(3, 1)
	a.ID, a.Name = "alpha", "Alpha"
	b := createTestSource(2, 1)
	b.ID, b.Name = "beta", "Beta"

	reg, err := sources.NewRegistry([]scraper.SourceConfig{a, b})
	require.NoError(t, err)
	return reg
}

func newTestOrchestrator(t *testing.T, h *harness, outputDir string) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Sources:   createTestRegistry(t),
		Lister:    h.lister,
		Resolver:  h.resolver,
		Writer:    h.writer,
		State:     h.state,
		Settings:  testSettings(30),
		OutputDir: outputDir,
	})
}

// TestOrchestrator_RunsAllSources verifies every source is crawled in order
// and the summary is persisted
func TestOrchestrator_RunsAllSources(t *testing.T) {
	h := newHarness()
	h.lister.withArticles(1, 2)
	dir := t.TempDir()

	summary, err := newTestOrchestrator(t, h, dir).Run(context.Background(), nil, RunOptions{})
	require.NoError(t, err)

	require.Len(t, summary.Sources, 2)
	assert.Equal(t, "alpha", summary.Sources[0].SourceID)
	assert.Equal(t, "beta", summary.Sources[1].SourceID)
	assert.Equal(t, []int{3, 2, 1, 2, 1}, h.lister.pagesListed())
	assert.Equal(t, 2, summary.Totals.Completed)
	assert.Equal(t, 4, summary.Totals.Saved, "each source keeps its own seen-link set")

	files, err := filepath.Glob(filepath.Join(dir, "run_summary_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var decoded RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary.RunID, decoded.RunID)
	assert.Len(t, h.state.runs, 1)
}

// TestOrchestrator_UnknownSourceContinues verifies a bad id is recorded and
// the run goes on
func TestOrchestrator_UnknownSourceContinues(t *testing.T) {
	h := newHarness()
	summary, err := newTestOrchestrator(t, h, "").Run(context.Background(), []string{"missing", "beta"}, RunOptions{})
	require.NoError(t, err)

	require.Len(t, summary.Sources, 2)
	assert.True(t, errors.Is(summary.Sources[0].Err, sources.ErrUnknownSource))
	assert.Contains(t, summary.Sources[0].Error, "missing")
	assert.Equal(t, StateDone, summary.Sources[1].State)
	assert.Equal(t, 1, summary.Totals.Failed)
	assert.Equal(t, 1, summary.Totals.Completed)
}

// TestOrchestrator_StartOverride verifies an override starts the crawl at
// the given page without touching the registry
func TestOrchestrator_StartOverride(t *testing.T) {
	h := newHarness()
	reg := createTestRegistry(t)
	o := NewOrchestrator(OrchestratorConfig{
		Sources:  reg,
		Lister:   h.lister,
		Resolver: h.resolver,
		Writer:   h.writer,
		Settings: testSettings(30),
	})

	_, err := o.Run(context.Background(), []string{"alpha"}, RunOptions{StartPages: map[string]int{"alpha": 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, h.lister.pagesListed())

	cfg, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.StartPage)
}

// TestOrchestrator_StartPrecedence verifies override beats checkpoint beats
// configuration
func TestOrchestrator_StartPrecedence(t *testing.T) {
	h := newHarness()
	h.state.resume["alpha"] = 2
	o := newTestOrchestrator(t, h, "")
	cfg, err := o.sources.Get("alpha")
	require.NoError(t, err)
	log := o.log

	page, from := o.startPage(cfg, RunOptions{Resume: true, StartPages: map[string]int{"alpha": 1}}, log)
	assert.Equal(t, 1, page)
	assert.Equal(t, "override", from)

	page, from = o.startPage(cfg, RunOptions{Resume: true}, log)
	assert.Equal(t, 2, page)
	assert.Equal(t, "checkpoint", from)

	page, from = o.startPage(cfg, RunOptions{}, log)
	assert.Equal(t, 3, page)
	assert.Equal(t, "config", from)
}

// TestOrchestrator_CancelSkipsRemaining verifies an interrupt ends the run
// after the current source
func TestOrchestrator_CancelSkipsRemaining(t *testing.T) {
	h := newHarness()
	h.lister.withArticles(3, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.lister.onList = func(page int) {
		if page == 3 {
			cancel()
		}
	}

	summary, err := newTestOrchestrator(t, h, "").Run(ctx, nil, RunOptions{})
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	require.Len(t, summary.Sources, 2)
	assert.True(t, summary.Sources[0].Interrupted)
	assert.True(t, summary.Sources[1].Skipped)
	assert.Equal(t, 1, summary.Totals.Skipped)
	assert.Len(t, h.state.runs, 1, "the summary is still recorded")
}

// TestOrchestrator_SummaryPersistenceError verifies the only error Run
// returns
func TestOrchestrator_SummaryPersistenceError(t *testing.T) {
	h := newHarness()
	h.state.runErr = errors.New("database locked")

	summary, err := newTestOrchestrator(t, h, "").Run(context.Background(), []string{"beta"}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database locked")
	require.NotNil(t, summary)
	assert.Len(t, summary.Sources, 1)
}
