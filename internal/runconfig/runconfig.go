package runconfig

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"recflow/internal/taskdef"
)

// Base field keys, in validation order.
const (
	KeyRunID    = "run_id"
	KeyInput    = "input"
	KeyTask     = "task"
	KeySettings = "settings"
	KeyStages   = "stages"
)

// StageToggle is one entry of the stage map.
type StageToggle struct {
	Enabled bool
	Suffix  string
	// Extra holds any additional keys of the stage entry.
	Extra map[string]any
}

// RunConfig is the fully resolved configuration of one run.
type RunConfig struct {
	RunID    string
	Input    string
	Task     string
	Settings map[string]any
	Stages   map[string]StageToggle
	// RequiredStages is the list that validation enforced.
	RequiredStages []string

	derived map[string]string
}

// Stage returns the toggle for a stage. Stages absent from the map are
// reported as disabled.
func (c *RunConfig) Stage(name string) (StageToggle, bool) {
	toggle, ok := c.Stages[name]
	return toggle, ok
}

// Enabled reports whether a stage is present and enabled.
func (c *RunConfig) Enabled(name string) bool {
	toggle, ok := c.Stages[name]
	return ok && toggle.Enabled
}

// SetDerived records a value computed during the run, such as an artifact
// location. Derived values are the only mutation allowed after validation.
func (c *RunConfig) SetDerived(key, value string) {
	if c.derived == nil {
		c.derived = make(map[string]string)
	}
	c.derived[key] = value
}

// Derived returns a copy of the derived values.
func (c *RunConfig) Derived() map[string]string {
	return maps.Clone(c.derived)
}

// StageNames returns the configured stage names sorted for stable output.
func (c *RunConfig) StageNames() []string {
	names := slices.Collect(maps.Keys(c.Stages))
	sort.Strings(names)
	return names
}

// Build merges a base configuration with the per-input fields of one run.
// The base is deep-copied so concurrent runs never share nested maps; the
// per-input fields always win over base values.
func Build(base map[string]any, task, input, runID string) map[string]any {
	raw := make(map[string]any, len(base)+3)
	for key, value := range base {
		raw[key] = taskdef.CloneValue(value)
	}
	raw[KeyRunID] = runID
	raw[KeyInput] = input
	raw[KeyTask] = strings.TrimSpace(task)
	if _, ok := raw[KeySettings]; !ok {
		raw[KeySettings] = map[string]any{}
	}
	if _, ok := raw[KeyStages]; !ok {
		raw[KeyStages] = map[string]any{}
	}
	return raw
}
