package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pevans/newsarchive/crawl"
	"github.com/pevans/newsarchive/sources"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// printRunSummary prints the outcome of a crawl.
func printRunSummary(w io.Writer, summary *crawl.RunSummary) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run %s\n", summary.RunID)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	for _, result := range summary.Sources {
		fmt.Fprintf(w, "%s %s\n", resultMarker(result), result.SourceID)
		if result.Skipped {
			fmt.Fprintln(w, "  Skipped")
			fmt.Fprintln(w)
			continue
		}
		if result.PagesVisited > 0 {
			fmt.Fprintf(w, "  Pages: %d..%d (%d visited, %d empty, %d failed)\n",
				result.StartPage, result.LastPage, result.PagesVisited, result.EmptyPages, result.FailedPages)
		}
		fmt.Fprintf(w, "  Articles: %d | Saved: %d | Duplicates: %d | Fetch failures: %d\n",
			result.Articles, result.Saved, result.Duplicates, result.FetchFailures)
		if len(result.Rejected) > 0 {
			fmt.Fprintf(w, "  Rejected: %s\n", formatRejected(result.Rejected))
		}
		if len(result.Partitions) > 0 {
			fmt.Fprintf(w, "  Partition files: %d\n", len(result.Partitions))
		}
		if result.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", truncate(result.Error, 80))
		}
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(result.Duration))
		fmt.Fprintln(w)
	}

	t := summary.Totals
	fmt.Fprintf(w, "Sources: %d (%d completed, %d failed, %d skipped)\n", t.Sources, t.Completed, t.Failed, t.Skipped)
	fmt.Fprintf(w, "Articles: %d | Saved: %d | Rejected: %d\n", t.Articles, t.Saved, t.Rejected)
	if summary.Interrupted {
		fmt.Fprintln(w, "Interrupted: run again with --resume to continue from the checkpoints")
	}
}

func resultMarker(result crawl.SourceResult) string {
	switch {
	case result.Skipped:
		return "-"
	case result.Error != "":
		return "✗"
	case result.Interrupted:
		return "⚠"
	default:
		return "✓"
	}
}

// formatRejected renders reason counts in a stable order.
func formatRejected(counts map[string]int) string {
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, counts[reason]))
	}
	return strings.Join(parts, ", ")
}

// printRuns prints recent runs newest first.
func printRuns(w io.Writer, runs []crawl.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "%-10s %-19s %-9s %-8s %-8s %-8s %s\n", "RUN", "STARTED", "DURATION", "SOURCES", "ARTICLES", "SAVED", "STATUS")
	fmt.Fprintln(w, "----------------------------------------------------------------------------")
	for _, run := range runs {
		status := "complete"
		if run.Interrupted {
			status = "interrupted"
		} else if run.Totals.Failed > 0 {
			status = fmt.Sprintf("%d failed", run.Totals.Failed)
		}
		fmt.Fprintf(w, "%-10s %-19s %-9s %-8d %-8d %-8d %s\n",
			run.RunID.String()[:8],
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatDuration(run.FinishedAt.Sub(run.StartedAt)),
			run.Totals.Sources,
			run.Totals.Articles,
			run.Totals.Saved,
			status,
		)
	}
	fmt.Fprintln(w)
}

// printStates prints per-source progress.
func printStates(w io.Writer, states []sources.SourceState, verbose bool) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No sources crawled yet.")
		return
	}

	fmt.Fprintf(w, "%-22s %-11s %-8s %-8s %s\n", "SOURCE", "CHECKPOINT", "ARTICLES", "SAVED", "UPDATED")
	fmt.Fprintln(w, "----------------------------------------------------------------------------")
	for i := range states {
		st := &states[i]
		fmt.Fprintf(w, "%-22s %-11s %-8d %-8d %s\n",
			st.SourceID,
			checkpointLabel(st),
			st.Articles,
			st.Saved,
			st.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
		if st.LastError != nil {
			msg := *st.LastError
			if !verbose {
				msg = truncate(msg, 77)
			}
			fmt.Fprintf(w, "  Last Error: %s\n", msg)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// truncate shortens s to n characters, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
