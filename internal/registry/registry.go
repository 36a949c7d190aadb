package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"recflow/internal/logging"
	"recflow/internal/services"
	"recflow/internal/stage"
	"recflow/internal/taskdef"
)

// Invalid is a candidate that failed to load.
type Invalid struct {
	Source string
	Origin taskdef.Origin
	Err    error
}

// Message is the load error without its classification prefix.
func (i Invalid) Message() string {
	return services.Details(i.Err).Message
}

// Skipped is a candidate that loaded but describes no task.
type Skipped struct {
	Source string
	Origin taskdef.Origin
	Reason string
}

// Override records a workspace definition shadowing a built-in one.
type Override struct {
	Name            string
	WorkspaceSource string
	BuiltinSource   string
}

// Discovery is the classification produced by one scan.
type Discovery struct {
	Valid     []*taskdef.Definition
	Invalid   []Invalid
	Skipped   []Skipped
	Overrides []Override
}

// Registry resolves task names across the built-in and workspace catalogs.
type Registry struct {
	builtin   Catalog
	workspace Catalog
	kinds     *stage.Catalog
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithComputations sets the computation catalog stage kinds are checked
// against. Defaults to stage.Builtins().
func WithComputations(kinds *stage.Catalog) Option {
	return func(r *Registry) {
		if kinds != nil {
			r.kinds = kinds
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a registry over the given catalogs. Either may be nil.
func New(builtin, workspace Catalog, opts ...Option) *Registry {
	r := &Registry{
		builtin:   builtin,
		workspace: workspace,
		kinds:     stage.Builtins(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "registry")
	return r
}

// Discover scans both catalogs.
func (r *Registry) Discover(ctx context.Context) Discovery {
	var d Discovery
	builtins := r.scan(ctx, r.builtin, &d)
	workspace := r.scan(ctx, r.workspace, &d)

	effective := make(map[string]*taskdef.Definition, len(builtins)+len(workspace))
	for key, def := range builtins {
		effective[key] = def
	}
	for key, def := range workspace {
		if shadowed, ok := builtins[key]; ok {
			d.Overrides = append(d.Overrides, Override{
				Name:            def.Name,
				WorkspaceSource: def.Source,
				BuiltinSource:   shadowed.Source,
			})
			r.logger.Info("workspace task overrides built-in",
				logging.String(logging.FieldEventType, "task_override"),
				logging.String(logging.FieldTask, def.Name),
				logging.String("workspace_source", def.Source),
				logging.String("builtin_source", shadowed.Source),
			)
		}
		effective[key] = def
	}
	for _, def := range effective {
		d.Valid = append(d.Valid, def)
	}
	sort.Slice(d.Valid, func(i, j int) bool { return d.Valid[i].Name < d.Valid[j].Name })
	sort.Slice(d.Overrides, func(i, j int) bool { return d.Overrides[i].Name < d.Overrides[j].Name })

	r.logger.Debug("task discovery complete",
		logging.String(logging.FieldEventType, "task_discovery"),
		logging.Int("valid", len(d.Valid)),
		logging.Int("invalid", len(d.Invalid)),
		logging.Int("skipped", len(d.Skipped)),
		logging.Int("overrides", len(d.Overrides)),
	)
	return d
}

// Resolve returns the effective definition for name, matched without regard
// to case. The definition is a copy the caller may modify.
func (r *Registry) Resolve(ctx context.Context, name string) (*taskdef.Definition, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	for _, def := range r.Discover(ctx).Valid {
		if strings.EqualFold(def.Name, name) {
			return def.Clone(), true
		}
	}
	return nil, false
}

// scan loads every candidate of c, appending invalid and skipped entries to
// d, and returns the valid definitions keyed by lower-cased name.
func (r *Registry) scan(ctx context.Context, c Catalog, d *Discovery) map[string]*taskdef.Definition {
	found := make(map[string]*taskdef.Definition)
	if c == nil {
		return found
	}
	candidates, err := c.Candidates()
	if err != nil {
		d.Invalid = append(d.Invalid, Invalid{Source: c.Root(), Origin: c.Origin(), Err: discoveryError(err)})
		logging.WarnWithContext(r.logger, "task catalog unreadable", "task_catalog_unreadable",
			logging.String("catalog", c.Root()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the workspace task directory"),
			logging.String(logging.FieldImpact, "tasks from this catalog are unavailable"),
		)
		return found
	}
	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		def, reason, err := load(cand)
		switch {
		case err != nil:
			d.Invalid = append(d.Invalid, Invalid{Source: cand.Source, Origin: c.Origin(), Err: discoveryError(err)})
			continue
		case def == nil:
			if reason == "" {
				reason = "no task definition found"
			}
			d.Skipped = append(d.Skipped, Skipped{Source: cand.Source, Origin: c.Origin(), Reason: reason})
			continue
		}
		if err := r.checkKinds(def); err != nil {
			d.Invalid = append(d.Invalid, Invalid{Source: cand.Source, Origin: c.Origin(), Err: discoveryError(err)})
			continue
		}
		key := strings.ToLower(def.Name)
		if first, dup := found[key]; dup {
			d.Invalid = append(d.Invalid, Invalid{
				Source: cand.Source,
				Origin: c.Origin(),
				Err:    discoveryError(fmt.Errorf("duplicate task name %s (already defined by %s)", def.Name, first.Source)),
			})
			continue
		}
		found[key] = def
	}
	return found
}

func (r *Registry) checkKinds(def *taskdef.Definition) error {
	for _, spec := range def.Stages {
		if !r.kinds.Has(spec.Compute) {
			return fmt.Errorf("task %s: stage %s uses unknown compute kind %q", def.Name, spec.Name, spec.Compute)
		}
	}
	return nil
}

// load runs a candidate's loader, converting a panic into an error so one
// broken candidate cannot abort discovery.
func load(c Candidate) (def *taskdef.Definition, reason string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			def, reason, err = nil, "", fmt.Errorf("panic while loading: %v", rec)
		}
	}()
	return c.Load()
}

func discoveryError(err error) error {
	return fmt.Errorf("%w: %w", services.ErrDiscovery, err)
}
