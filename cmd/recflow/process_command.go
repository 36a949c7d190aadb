package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/runstore"
	"recflow/internal/workflow"
)

type processOptions struct {
	format    string
	recursive bool
	parallel  int
	asJSON    bool
	noHistory bool
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process <task> <file-or-dir>...",
		Short: "Run a task over recordings",
		Long: `Run a task over one or more recordings.

Arguments after the task name may be recording files or a single directory.
Directories are scanned with --format (bare extensions such as .raw become
*.raw). Failed runs do not stop the batch; the command exits non-zero when
any run failed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, ctx, args[0], args[1:], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Input file pattern when processing a directory (default from config)")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "Scan directories recursively")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "j", 0, "Concurrent runs, clamped to [1, batch.hard_cap] (default from config)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the batch summary as JSON")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record runs in the history database")
	return cmd
}

func runProcess(cmd *cobra.Command, ctx *commandContext, task string, targets []string, opts processOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	inputs, dir, err := splitTargets(targets)
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire batch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another recflow batch is running (lock held on %s)", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	orchOpts := []workflow.Option{workflow.WithLogger(logger)}
	if !opts.noHistory {
		store, err := runstore.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "run history unavailable", "run_history_unavailable",
				logging.String("path", cfg.RunDBPath()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "runs from this batch are not recorded"),
			)
		} else {
			defer store.Close()
			orchOpts = append(orchOpts, workflow.WithRecorder(store))
		}
	}

	errOut := cmd.ErrOrStderr()
	var progress *progressReporter
	if !opts.asJSON && shouldColorize(errOut) {
		progress = newProgressReporter(errOut, task)
		orchOpts = append(orchOpts, workflow.WithProgress(progress.update))
	}

	parallel := opts.parallel
	if !cmd.Flags().Changed("parallel") {
		parallel = cfg.Batch.Parallel
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := workflow.New(cfg, ctx.newRegistry(cfg, logger), orchOpts...)
	summary, err := orch.RunMany(runCtx, workflow.BatchRequest{
		Task:        workflow.TaskNamed(task),
		Inputs:      inputs,
		Dir:         dir,
		Pattern:     opts.format,
		Recursive:   opts.recursive || cfg.Batch.Recursive,
		Concurrency: parallel,
	})
	progress.finish()
	if err != nil {
		return err
	}

	if opts.asJSON {
		if err := writeJSON(cmd, newSummaryView(summary)); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderBatchSummary(summary, shouldColorize(cmd.OutOrStdout())))
	}

	if summary.Interrupted {
		return fmt.Errorf("batch interrupted with %d inputs not started: %w", summary.Skipped, context.Canceled)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d runs failed", summary.Failed, summary.Total())
	}
	return nil
}

// splitTargets separates recording files from a directory argument. At most
// one directory may be given.
func splitTargets(targets []string) ([]string, string, error) {
	var (
		inputs []string
		dir    string
	)
	for _, target := range targets {
		path, err := config.ExpandPath(strings.TrimSpace(target))
		if err != nil {
			return nil, "", fmt.Errorf("resolve %q: %w", target, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, "", fmt.Errorf("input %s does not exist", path)
			}
			return nil, "", fmt.Errorf("inspect %s: %w", path, err)
		}
		if !info.IsDir() {
			inputs = append(inputs, path)
			continue
		}
		if dir != "" {
			return nil, "", fmt.Errorf("only one input directory may be given (got %s and %s)", dir, path)
		}
		dir = path
	}
	return inputs, dir, nil
}

// progressReporter drives a terminal progress bar from orchestrator
// callbacks, which may arrive from several workers at once.
type progressReporter struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	bar   *progressbar.ProgressBar
}

func newProgressReporter(out io.Writer, label string) *progressReporter {
	return &progressReporter{out: out, label: label}
}

func (p *progressReporter) update(done, total int, outcome workflow.RunOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(p.label),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progressReporter) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func renderBatchSummary(summary workflow.BatchSummary, colorize bool) string {
	outcomes := slices.Clone(summary.Outcomes)
	slices.SortFunc(outcomes, func(a, b workflow.RunOutcome) int {
		return strings.Compare(a.Input, b.Input)
	})

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		flag := ""
		if o.Flag.Flagged {
			flag = strings.Join(o.Flag.Reasons, "; ")
		}
		detail := ""
		if o.Failed() {
			detail = fmt.Sprintf("%s: %s", o.ErrorKind, o.ErrorMessage)
		}
		rows = append(rows, []string{
			filepath.Base(o.Input),
			paint(string(o.Status), runStatusKind(o.Status, o.Flag.Flagged), colorize),
			flag,
			o.FailedStage,
			detail,
			formatDuration(o.Duration),
		})
	}

	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(renderTable(
			[]string{"Input", "Status", "Flag", "Failed Stage", "Error", "Duration"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		))
		b.WriteByte('\n')
	}
	if summary.BackupPath != "" {
		fmt.Fprintf(&b, "Previous output moved to %s\n", summary.BackupPath)
	}
	fmt.Fprintf(&b, "Task %s: %s completed, %s failed, %s flagged in %s (concurrency %d)\n",
		summary.Task,
		paint(fmt.Sprint(summary.Completed), statusOK, colorize),
		paint(fmt.Sprint(summary.Failed), statusError, colorize && summary.Failed > 0),
		paint(fmt.Sprint(summary.Flagged), statusWarn, colorize && summary.Flagged > 0),
		formatDuration(summary.Duration),
		summary.Concurrency,
	)
	if summary.Interrupted {
		fmt.Fprintf(&b, "%s: %d inputs were not started\n", paint("Interrupted", statusWarn, colorize), summary.Skipped)
	}
	fmt.Fprintf(&b, "Output: %s\n", summary.Root)
	return b.String()
}

type outcomeView struct {
	RunID        string            `json:"run_id"`
	Input        string            `json:"input"`
	Status       string            `json:"status"`
	Flagged      bool              `json:"flagged"`
	FlagReasons  []string          `json:"flag_reasons,omitempty"`
	FailedStage  string            `json:"failed_stage,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	FinalPath    string            `json:"final_path,omitempty"`
	LogPath      string            `json:"log_path,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

type summaryView struct {
	BatchID     string        `json:"batch_id"`
	Task        string        `json:"task"`
	Root        string        `json:"root"`
	BackupPath  string        `json:"backup_path,omitempty"`
	Concurrency int           `json:"concurrency"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Flagged     int           `json:"flagged"`
	Interrupted bool          `json:"interrupted"`
	Skipped     int           `json:"skipped"`
	DurationMS  int64         `json:"duration_ms"`
	Runs        []outcomeView `json:"runs"`
}

func newSummaryView(summary workflow.BatchSummary) summaryView {
	view := summaryView{
		BatchID:     summary.BatchID,
		Task:        summary.Task,
		Root:        summary.Root,
		BackupPath:  summary.BackupPath,
		Concurrency: summary.Concurrency,
		Completed:   summary.Completed,
		Failed:      summary.Failed,
		Flagged:     summary.Flagged,
		Interrupted: summary.Interrupted,
		Skipped:     summary.Skipped,
		DurationMS:  summary.Duration.Milliseconds(),
		Runs:        make([]outcomeView, 0, len(summary.Outcomes)),
	}
	for _, o := range summary.Outcomes {
		view.Runs = append(view.Runs, outcomeView{
			RunID:        o.RunID,
			Input:        o.Input,
			Status:       string(o.Status),
			Flagged:      o.Flag.Flagged,
			FlagReasons:  o.Flag.Reasons,
			FailedStage:  o.FailedStage,
			ErrorKind:    o.ErrorKind,
			ErrorMessage: o.ErrorMessage,
			Artifacts:    o.Artifacts,
			FinalPath:    o.FinalPath,
			LogPath:      o.LogPath,
			DurationMS:   o.Duration.Milliseconds(),
		})
	}
	slices.SortFunc(view.Runs, func(a, b outcomeView) int {
		return strings.Compare(a.Input, b.Input)
	})
	return view
}
