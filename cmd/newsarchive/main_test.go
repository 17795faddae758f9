package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsarchive/crawl"
	"github.com/pevans/newsarchive/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSourcesYAML = `
sources:
  - id: alpha
    name: Alpha News
    listing_url: https://alpha.example.com/page/
    start_page: 4
    end_page: 1
    selectors:
      article: article
      link: [h2 a]
`

// Test helper: run the root command with args in an isolated environment
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatal(wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSources(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSourcesYAML), 0o644))
	return path
}

// TestParseStartPages verifies override parsing
func TestParseStartPages(t *testing.T) {
	got, err := parseStartPages([]string{"blockcast=2", " btctech = 40 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"blockcast": 2, "btctech": 40}, got)

	for _, bad := range []string{"blockcast", "=3", "blockcast=0", "blockcast=x"} {
		_, err := parseStartPages([]string{bad})
		assert.Error(t, err, bad)
	}
}

// TestSourcesList verifies the registry table and stored checkpoints
func TestSourcesList(t *testing.T) {
	sourcesFile := writeSources(t)
	output := t.TempDir()

	state, err := sources.NewStateStore(filepath.Join(output, "state.db"))
	require.NoError(t, err)
	require.NoError(t, state.SaveCheckpoint("alpha", 3))
	require.NoError(t, state.Close())

	out, err := runCommand(t, "sources", "list", "--sources", sourcesFile, "--output", output, "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "Alpha News")
	assert.Contains(t, out, "4..1")
	assert.Contains(t, out, "page 3")
}

// TestSourcesList_DefaultRegistry verifies the built-in sources are used
func TestSourcesList_DefaultRegistry(t *testing.T) {
	out, err := runCommand(t, "sources", "list", "--output", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "blockcast")
	assert.Contains(t, out, "abmedia_search_trump")
}

// TestStatus verifies recorded runs are listed
func TestStatus(t *testing.T) {
	output := t.TempDir()
	state, err := sources.NewStateStore(filepath.Join(output, "state.db"))
	require.NoError(t, err)

	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	runID := uuid.New()
	require.NoError(t, state.RecordRun(runID, started, started.Add(90*time.Second),
		`{"run_id":"`+runID.String()+`","interrupted":true,"totals":{"sources":2,"articles":9,"saved":7}}`))
	require.NoError(t, state.RecordResult("alpha", false, 9, 7, nil))
	require.NoError(t, state.Close())

	out, err := runCommand(t, "status", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, runID.String()[:8])
	assert.Contains(t, out, "interrupted")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "alpha")
}

// TestWithRecordTimes verifies the run row backs up missing summary fields
func TestWithRecordTimes(t *testing.T) {
	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	rec := sources.RunRecord{RunID: uuid.New(), StartedAt: started, FinishedAt: started.Add(time.Minute)}

	got := withRecordTimes(crawl.RunSummary{}, rec)
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, started, got.StartedAt)
	assert.Equal(t, started.Add(time.Minute), got.FinishedAt)

	own := crawl.RunSummary{RunID: uuid.New(), StartedAt: started.Add(time.Hour)}
	got = withRecordTimes(own, rec)
	assert.Equal(t, own.RunID, got.RunID)
	assert.Equal(t, own.StartedAt, got.StartedAt)
	assert.Equal(t, rec.FinishedAt, got.FinishedAt)
}

// TestCrawl_InvalidStartPage verifies flag errors surface before any work
func TestCrawl_InvalidStartPage(t *testing.T) {
	_, err := runCommand(t, "crawl", "--start-page", "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start-page")
}

// TestPrintRunSummary verifies per-source and total lines
func TestPrintRunSummary(t *testing.T) {
	var out bytes.Buffer
	printRunSummary(&out, &crawl.RunSummary{
		RunID:       uuid.New(),
		Interrupted: true,
		Sources: []crawl.SourceResult{
			{SourceID: "alpha", StartPage: 3, LastPage: 2, PagesVisited: 2, Articles: 5, Saved: 4,
				Rejected: map[string]int{"too_short": 1}, Interrupted: true,
				Partitions: []string{"data/alpha/2024/a.json", "data/alpha/2023/b.json"}},
			{SourceID: "beta", Skipped: true},
		},
		Totals: crawl.Totals{Sources: 2, Skipped: 1, Articles: 5, Saved: 4, Rejected: 1},
	})

	s := out.String()
	assert.Contains(t, s, "⚠ alpha")
	assert.Contains(t, s, "Pages: 3..2")
	assert.Contains(t, s, "too_short=1")
	assert.Contains(t, s, "Partition files: 2")
	assert.Contains(t, s, "- beta")
	assert.Contains(t, s, "--resume")
}

// TestFormatters verifies small display helpers
func TestFormatters(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "比特...", truncate("比特幣新聞報導", 5))
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "2h5m", formatDuration(125*time.Minute))
	assert.Equal(t, "-", checkpointLabel(nil))
	assert.Equal(t, "done", checkpointLabel(&sources.SourceState{Completed: true, NextPage: 4}))
	assert.Equal(t, "a=1, b=2", formatRejected(map[string]int{"b": 2, "a": 1}))
}
