package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pevans/newsarchive/scraper"
	"github.com/pevans/newsarchive/sources"
	"github.com/spf13/cobra"
)

func newSourcesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect the source registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered sources with their checkpoints",
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

			rows := make([]sourceRow, 0, a.registry.Len())
			for _, id := range a.registry.IDs() {
				cfg, err := a.registry.Get(id)
				if err != nil {
					return err
				}
				st, err := state.GetState(id)
				if err != nil && !errors.Is(err, sources.ErrStateNotFound) {
					return fmt.Errorf("failed to read state for %s: %w", id, err)
				}
				rows = append(rows, sourceRow{cfg: cfg, state: st})
			}

			printSourcesTable(cmd.OutOrStdout(), rows)
			return nil
		},
	})

	return cmd
}

type sourceRow struct {
	cfg   scraper.SourceConfig
	state *sources.SourceState
}

// checkpointLabel describes where a resumed crawl would start.
func checkpointLabel(state *sources.SourceState) string {
	switch {
	case state == nil:
		return "-"
	case state.Completed:
		return "done"
	case state.NextPage > 0:
		return "page " + strconv.Itoa(state.NextPage)
	default:
		return "-"
	}
}

func printSourcesTable(w io.Writer, rows []sourceRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}

	fmt.Fprintf(w, "%-22s %-28s %-9s %-6s %-11s %s\n", "ID", "NAME", "DIRECTION", "FORMAT", "PAGES", "CHECKPOINT")
	fmt.Fprintln(w, "----------------------------------------------------------------------------------------------")

	for _, row := range rows {
		name := truncate(row.cfg.Name, 28)
		pages := fmt.Sprintf("%d..%d", row.cfg.StartPage, row.cfg.EndPage)
		fmt.Fprintf(w, "%-22s %-28s %-9s %-6s %-11s %s\n",
			row.cfg.ID,
			name,
			row.cfg.Direction,
			row.cfg.Format,
			pages,
			checkpointLabel(row.state),
		)
	}
}
