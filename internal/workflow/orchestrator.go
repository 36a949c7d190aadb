package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/record"
	"recflow/internal/stage"
	"recflow/internal/taskdef"
)

// Resolver maps task names to definitions. *registry.Registry satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*taskdef.Definition, bool)
}

// OutcomeRecorder receives every run outcome, e.g. to keep run history.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome RunOutcome) error
}

// ProgressFunc is called after every run of a batch finishes.
type ProgressFunc func(done, total int, outcome RunOutcome)

// Orchestrator runs tasks against inputs. It is safe for concurrent use.
type Orchestrator struct {
	cfg      *config.Config
	resolver Resolver
	logger   *slog.Logger
	importer record.Importer
	kinds    *stage.Catalog
	recorder OutcomeRecorder
	fs       afero.Fs
	now      func() time.Time
	newID    func() string
	progress ProgressFunc

	// mu guards backups and ready; it is held for the whole of root
	// preparation so a backup completes before any run uses the root.
	mu      sync.Mutex
	backups map[string]string
	ready   map[string]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithImporter replaces the default file importer.
func WithImporter(importer record.Importer) Option {
	return func(o *Orchestrator) {
		if importer != nil {
			o.importer = importer
		}
	}
}

// WithComputations sets the catalog stage compute kinds are bound from.
func WithComputations(kinds *stage.Catalog) Option {
	return func(o *Orchestrator) {
		if kinds != nil {
			o.kinds = kinds
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(recorder OutcomeRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithFilesystem sets the filesystem output roots and inputs live on.
func WithFilesystem(fs afero.Fs) Option {
	return func(o *Orchestrator) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithClock overrides the time source used for backup names and timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides run and batch identifier generation.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// WithProgress registers a callback invoked after each batch run.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New constructs an orchestrator.
func New(cfg *config.Config, resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		resolver: resolver,
		logger:   logging.NewNop(),
		kinds:    stage.Builtins(),
		fs:       afero.NewOsFs(),
		now:      time.Now,
		newID:    uuid.NewString,
		backups:  make(map[string]string),
		ready:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.importer == nil {
		o.importer = record.FileImporter{FS: o.fs}
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o
}
