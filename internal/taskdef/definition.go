package taskdef

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Origin records which catalog a definition came from.
type Origin string

const (
	OriginBuiltin   Origin = "built-in"
	OriginWorkspace Origin = "workspace"
)

// StageSpec is one step of a task's stage sequence.
type StageSpec struct {
	Name    string
	Compute string
	Params  map[string]any
}

// Definition is an immutable description of a processing task.
type Definition struct {
	Name        string
	Origin      Origin
	Source      string
	Description string
	// RequiredStages is nil when the definition does not declare the list;
	// validation then falls back to the default stage list.
	RequiredStages     []string
	Stages             []StageSpec
	Schema             map[string]FieldType
	Settings           map[string]any
	MinDurationSeconds float64
}

// ImportStage is the stage name under which the imported record is
// persisted. Task stage sequences may not reuse it.
const ImportStage = "post_import"

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Validate checks the structural rules every definition must satisfy.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("task definition is nil")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("task name is required")
	}
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("task name %q must start with a letter and contain only letters, digits, '_' or '-'", d.Name)
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("task %s declares no stages", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Stages))
	for i, stage := range d.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("task %s: stage %d has no name", d.Name, i+1)
		}
		if strings.TrimSpace(stage.Compute) == "" {
			return fmt.Errorf("task %s: stage %s has no compute kind", d.Name, stage.Name)
		}
		if stage.Name == ImportStage {
			return fmt.Errorf("task %s: stage name %s is reserved for the imported record", d.Name, ImportStage)
		}
		if _, dup := seen[stage.Name]; dup {
			return fmt.Errorf("task %s: duplicate stage %s", d.Name, stage.Name)
		}
		seen[stage.Name] = struct{}{}
	}
	for _, name := range d.RequiredStages {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("task %s: required stage names must not be empty", d.Name)
		}
	}
	for field, value := range d.Settings {
		ft, ok := d.Schema[field]
		if !ok {
			continue
		}
		if !ft.Matches(value) {
			return fmt.Errorf("task %s: default for setting %s must be %s, got %s", d.Name, field, ft, Describe(value))
		}
	}
	if d.MinDurationSeconds < 0 {
		return fmt.Errorf("task %s: min_duration_seconds must be non-negative", d.Name)
	}
	return nil
}

// StageNames returns the stage sequence names in order.
func (d *Definition) StageNames() []string {
	names := make([]string, 0, len(d.Stages))
	for _, stage := range d.Stages {
		names = append(names, stage.Name)
	}
	return names
}

// DeclaresRequiredStages reports whether the definition carries its own
// required-stage list.
func (d *Definition) DeclaresRequiredStages() bool {
	return d.RequiredStages != nil
}

// Clone returns a deep copy so callers cannot mutate a registered definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	clone := *d
	if d.RequiredStages != nil {
		clone.RequiredStages = slices.Clone(d.RequiredStages)
	}
	clone.Stages = make([]StageSpec, len(d.Stages))
	for i, stage := range d.Stages {
		clone.Stages[i] = StageSpec{Name: stage.Name, Compute: stage.Compute, Params: cloneMap(stage.Params)}
	}
	if d.Schema != nil {
		clone.Schema = make(map[string]FieldType, len(d.Schema))
		for k, v := range d.Schema {
			clone.Schema[k] = v
		}
	}
	clone.Settings = cloneMap(d.Settings)
	return &clone
}

// CloneValue deep-copies decoded configuration values (maps and slices).
func CloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return value
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}
