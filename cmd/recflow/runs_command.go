package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"recflow/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var opts runstore.ListOptions
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				detail := ""
				if run.Failed() {
					detail = fmt.Sprintf("%s at %s", run.ErrorKind, valueOrDash(run.FailedStage))
				}
				rows = append(rows, []string{
					shortID(run.RunID),
					humanize.Time(run.StartedAt),
					run.Task,
					filepath.Base(run.Input),
					paint(string(run.Status), runStatusKind(run.Status, run.Flagged), colorize),
					yesNo(run.Flagged),
					detail,
					formatDuration(run.Duration),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Task", "Input", "Status", "Flagged", "Failure", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))

			stats, err := store.Stats(cmd.Context(), opts.Task)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s runs recorded: %s completed, %s failed, %s flagged\n",
				humanize.Comma(int64(stats.Total)),
				humanize.Comma(int64(stats.Completed)),
				humanize.Comma(int64(stats.Failed)),
				humanize.Comma(int64(stats.Flagged)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Task, "task", "t", "", "Only show runs of this task")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "Only show runs of this batch")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "Only show failed runs")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
