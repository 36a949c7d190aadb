package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recflow/internal/runlog"
	"recflow/internal/runstore"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Show the log of a recorded run",
		Long:  "Show the per-run log of a recorded run. A unique prefix of the run ID is enough.",
		Args:  cobra.ExactArgs(1),
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

			run, err := findRun(cmd, store, args[0])
			if err != nil {
				return err
			}
			if run.LogPath == "" {
				return fmt.Errorf("run %s has no log file", run.RunID)
			}

			out := cmd.OutOrStdout()
			render := runlog.Format
			if raw {
				render = func(line string) string { return line }
			}
			result, err := runlog.Tail(cmd.Context(), run.LogPath, runlog.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, render(line))
			}
			for follow {
				result, err = runlog.Tail(cmd.Context(), run.LogPath, runlog.TailOptions{
					Offset: result.Offset,
					Follow: true,
					Wait:   2 * time.Second,
				})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, render(line))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (0 for none)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unchanged")
	return cmd
}

func findRun(cmd *cobra.Command, store *runstore.Store, prefix string) (*runstore.Run, error) {
	runs, err := store.FindByPrefix(cmd.Context(), prefix)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("no recorded run matches %q", prefix)
	case 1:
		return runs[0], nil
	default:
		ids := make([]string, 0, len(runs))
		for _, run := range runs {
			ids = append(ids, run.RunID)
		}
		return nil, fmt.Errorf("run id prefix %q is ambiguous: %s", prefix, strings.Join(ids, ", "))
	}
}
