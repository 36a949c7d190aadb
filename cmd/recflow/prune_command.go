package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"recflow/internal/runstore"
	"recflow/internal/workflow"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool
	var history bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old output backups and run history",
		Long: `Remove output roots that earlier batches moved aside as <task>_backup_<timestamp>
when they are older than --older-than. With --history, run history entries
started before the same cutoff are deleted too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			cutoff := time.Now().Add(-olderThan)
			out := cmd.OutOrStdout()

			result, err := workflow.PruneBackups(cmd.Context(), afero.NewOsFs(), cfg.Paths.OutputDir, cutoff, dryRun, logger)
			if err != nil {
				return fmt.Errorf("prune backups: %w", err)
			}
			var reclaimed int64
			rows := make([][]string, 0, len(result.Removed))
			for _, b := range result.Removed {
				reclaimed += b.Size
				rows = append(rows, []string{b.Task, filepath.Base(b.Path), humanize.Time(b.Created), humanize.IBytes(uint64(b.Size))})
			}
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Backup", "Created", "Size"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
			}
			fmt.Fprintf(out, "%s %d backup(s), %s\n", verb, len(result.Removed), humanize.IBytes(uint64(reclaimed)))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "Failed to remove %s: %v\n", e.Path, e.Error)
			}

			if history && !dryRun {
				store, err := runstore.Open(cfg)
				if err != nil {
					return fmt.Errorf("open run history: %w", err)
				}
				defer store.Close()
				removed, err := store.Prune(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s run history entries\n", humanize.Comma(removed))
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d backup(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove backups created longer ago than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be removed")
	cmd.Flags().BoolVar(&history, "history", false, "Also delete run history entries older than the cutoff")
	return cmd
}
