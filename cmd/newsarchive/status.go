package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/newsarchive/crawl"
	"github.com/pevans/newsarchive/sources"
	"github.com/spf13/cobra"
)

func newStatusCommand(root *rootOptions) *cobra.Command {
	var (
		limit   int
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs and per-source progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			state, err := a.openState()
			if err != nil {
				return err
			}
			defer state.Close()

			records, err := state.ListRuns(limit)
			if err != nil {
				return err
			}
			states, err := state.ListStates()
			if err != nil {
				return err
			}

			runs := make([]crawl.RunSummary, 0, len(records))
			for _, rec := range records {
				var summary crawl.RunSummary
				if err := json.Unmarshal([]byte(rec.Summary), &summary); err != nil {
					return fmt.Errorf("failed to decode run %s: %w", rec.RunID, err)
				}
				runs = append(runs, withRecordTimes(summary, rec))
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, map[string]any{
					"runs":    runs,
					"sources": states,
				})
			}
			printRuns(out, runs)
			printStates(out, states, verbose)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show full error messages")
	return cmd
}

// withRecordTimes fills identity and timing the stored summary lacks from the
// run row itself.
func withRecordTimes(summary crawl.RunSummary, rec sources.RunRecord) crawl.RunSummary {
	if summary.RunID == uuid.Nil {
		summary.RunID = rec.RunID
	}
	if summary.StartedAt.IsZero() {
		summary.StartedAt = rec.StartedAt
	}
	if summary.FinishedAt.IsZero() {
		summary.FinishedAt = rec.FinishedAt
	}
	return summary
}
