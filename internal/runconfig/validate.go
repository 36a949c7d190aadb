package runconfig

import (
	"log/slog"
	"maps"
	"slices"
	"strings"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/taskdef"
)

type baseField struct {
	key      string
	expected taskdef.FieldType
	label    string
}

var baseFields = []baseField{
	{KeyRunID, taskdef.TypeString, "string"},
	{KeyInput, taskdef.TypePath, "path"},
	{KeyTask, taskdef.TypeString, "string"},
	{KeySettings, taskdef.TypeMap, "mapping"},
	{KeyStages, taskdef.TypeMap, "mapping"},
}

// Validate checks raw against the definition and returns the typed run config.
// Errors are *MissingFieldError, *TypeFieldError or *StageConfigError, all of
// which match services.ErrConfiguration. Warnings go to logger when the
// definition does not declare its required stages and when an optional stage
// entry is malformed.
func Validate(def *taskdef.Definition, raw map[string]any, logger *slog.Logger) (*RunConfig, error) {
	for _, field := range baseFields {
		value, ok := raw[field.key]
		if !ok {
			return nil, &MissingFieldError{Field: field.key}
		}
		if !field.expected.Matches(value) {
			return nil, &TypeFieldError{Field: field.key, Expected: field.label, Actual: taskdef.Describe(value)}
		}
	}

	required := requiredStages(def, logger)
	stageMap := toStringMap(raw[KeyStages])
	stages := make(map[string]StageToggle, len(stageMap))
	for _, name := range required {
		entry, ok := stageMap[name]
		if !ok {
			return nil, &StageConfigError{Stage: name, Problem: "missing from stage map"}
		}
		toggle, err := parseToggle(name, entry)
		if err != nil {
			return nil, err
		}
		stages[name] = toggle
	}
	// Optional entries are kept when well formed so task stages outside the
	// required list can still be enabled. Malformed ones are dropped, which
	// leaves the stage disabled.
	for _, name := range slices.Sorted(maps.Keys(stageMap)) {
		if _, done := stages[name]; done {
			continue
		}
		toggle, err := parseToggle(name, stageMap[name])
		if err != nil {
			logging.WarnWithContext(logger, "ignoring malformed stage entry", "stage_config_ignored",
				logging.String(logging.FieldStage, name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "stage entries need a boolean enabled and a string suffix"),
				logging.String(logging.FieldImpact, "stage runs as disabled"),
			)
			continue
		}
		stages[name] = toggle
	}

	settings, err := resolveSettings(def, toStringMap(raw[KeySettings]))
	if err != nil {
		return nil, err
	}

	return &RunConfig{
		RunID:          stringValue(raw[KeyRunID]),
		Input:          strings.TrimSpace(stringValue(raw[KeyInput])),
		Task:           stringValue(raw[KeyTask]),
		Settings:       settings,
		Stages:         stages,
		RequiredStages: required,
	}, nil
}

func requiredStages(def *taskdef.Definition, logger *slog.Logger) []string {
	if def != nil && def.DeclaresRequiredStages() {
		return slices.Clone(def.RequiredStages)
	}
	logging.WarnWithContext(logger, "task does not declare required stages; using defaults",
		"required_stages_defaulted",
		logging.Strings("default_stages", config.DefaultStages),
		logging.String(logging.FieldErrorHint, "add required_stages to the task definition"),
		logging.String(logging.FieldImpact, "default stages must be present in the stage map"),
	)
	return slices.Clone(config.DefaultStages)
}

func parseToggle(name string, entry any) (StageToggle, error) {
	if !taskdef.TypeMap.Matches(entry) {
		return StageToggle{}, &StageConfigError{Stage: name, Problem: "configuration must be a mapping, got " + taskdef.Describe(entry)}
	}
	fields := toStringMap(entry)
	enabled, ok := fields["enabled"]
	if !ok {
		return StageToggle{}, &StageConfigError{Stage: name, Problem: "must have 'enabled' field"}
	}
	enabledVal, ok := enabled.(bool)
	if !ok {
		return StageToggle{}, &StageConfigError{Stage: name, Problem: "'enabled' must be bool, got " + taskdef.Describe(enabled)}
	}
	suffix, ok := fields["suffix"]
	if !ok {
		return StageToggle{}, &StageConfigError{Stage: name, Problem: "must have 'suffix' field"}
	}
	suffixVal, ok := suffix.(string)
	if !ok {
		return StageToggle{}, &StageConfigError{Stage: name, Problem: "'suffix' must be string, got " + taskdef.Describe(suffix)}
	}
	toggle := StageToggle{Enabled: enabledVal, Suffix: suffixVal}
	for key, value := range fields {
		if key == "enabled" || key == "suffix" {
			continue
		}
		if toggle.Extra == nil {
			toggle.Extra = make(map[string]any)
		}
		toggle.Extra[key] = value
	}
	return toggle, nil
}

func resolveSettings(def *taskdef.Definition, provided map[string]any) (map[string]any, error) {
	settings := make(map[string]any, len(provided))
	if def != nil {
		for key, value := range def.Settings {
			settings[key] = taskdef.CloneValue(value)
		}
	}
	for key, value := range provided {
		settings[key] = value
	}
	if def == nil {
		return settings, nil
	}
	for field, ft := range def.Schema {
		value, ok := settings[field]
		if !ok {
			continue
		}
		if !ft.Matches(value) {
			return nil, &TypeFieldError{Field: KeySettings + "." + field, Expected: string(ft), Actual: taskdef.Describe(value)}
		}
	}
	return settings, nil
}

// toStringMap normalizes decoded mappings. Decoders produce map[string]any,
// but programmatic callers sometimes pass typed maps.
func toStringMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[string]map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = item
		}
		return out
	default:
		return reflectStringMap(value)
	}
}
