package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaforge/internal/history"
	"mediaforge/internal/models"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(cmd.Context(), history.Options{
				Driver:          ctx.config.History.Driver,
				DSN:             ctx.config.History.DSN,
				ConnectAttempts: 1,
				Logger:          ctx.logger,
			})
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				if entries == nil {
					entries = []models.HistoryEntry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No jobs recorded yet")
				return nil
			}
			color := colorEnabled(out)
			tag := ctx.locale()
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				row := outcomeRow(e.InputPath, e.Outcome, tag, color)
				rows = append(rows, append([]string{
					e.FinishedAt.Local().Format("2006-01-02 15:04"),
					e.Source,
					e.Operation,
				}, row...))
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Finished", "Source", "Operation", "Input", "Result", "Output", "Size", "Saved"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}
