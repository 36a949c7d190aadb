package taskdef

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a definition file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for files that are not definition files.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

// FormatFromPath infers the definition format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

type fileDefinition struct {
	Task  *fileTask  `toml:"task" yaml:"task"`
	Tasks []fileTask `toml:"tasks" yaml:"tasks"`
}

type fileTask struct {
	Name               string            `toml:"name" yaml:"name"`
	Description        string            `toml:"description" yaml:"description"`
	RequiredStages     []string          `toml:"required_stages" yaml:"required_stages"`
	MinDurationSeconds float64           `toml:"min_duration_seconds" yaml:"min_duration_seconds"`
	Schema             map[string]string `toml:"schema" yaml:"schema"`
	Settings           map[string]any    `toml:"settings" yaml:"settings"`
	Stages             []fileStage       `toml:"stages" yaml:"stages"`
}

type fileStage struct {
	Name    string         `toml:"name" yaml:"name"`
	Compute string         `toml:"compute" yaml:"compute"`
	Params  map[string]any `toml:"params" yaml:"params"`
}

// Parse decodes a definition file. It returns a non-empty skip reason (and no
// error) when the file decodes cleanly but does not describe a task; decode
// errors, multiple task blocks, and structural violations are errors.
func Parse(data []byte, format Format, origin Origin, source string) (*Definition, string, error) {
	var probe map[string]any
	if err := decodeLoose(data, format, &probe); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", format, err)
	}
	_, hasTask := probe["task"]
	_, hasTasks := probe["tasks"]
	if !hasTask && !hasTasks {
		return nil, "no task definition found", nil
	}

	var file fileDefinition
	if err := decodeStrict(data, format, &file); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", format, err)
	}

	tasks := file.Tasks
	if file.Task != nil {
		tasks = append([]fileTask{*file.Task}, tasks...)
	}
	switch len(tasks) {
	case 0:
		return nil, "no task definition found", nil
	case 1:
	default:
		return nil, "", fmt.Errorf("expected exactly one task definition, found %d", len(tasks))
	}

	def, err := tasks[0].toDefinition(origin, source)
	if err != nil {
		return nil, "", err
	}
	if err := def.Validate(); err != nil {
		return nil, "", err
	}
	return def, "", nil
}

func (f fileTask) toDefinition(origin Origin, source string) (*Definition, error) {
	def := &Definition{
		Name:               strings.TrimSpace(f.Name),
		Origin:             origin,
		Source:             source,
		Description:        strings.TrimSpace(f.Description),
		RequiredStages:     f.RequiredStages,
		Settings:           f.Settings,
		MinDurationSeconds: f.MinDurationSeconds,
	}
	if len(f.Schema) > 0 {
		def.Schema = make(map[string]FieldType, len(f.Schema))
		for field, raw := range f.Schema {
			ft, err := ParseFieldType(raw)
			if err != nil {
				return nil, fmt.Errorf("schema field %s: %w", field, err)
			}
			def.Schema[field] = ft
		}
	}
	for _, stage := range f.Stages {
		def.Stages = append(def.Stages, StageSpec{
			Name:    strings.TrimSpace(stage.Name),
			Compute: strings.ToLower(strings.TrimSpace(stage.Compute)),
			Params:  stage.Params,
		})
	}
	return def, nil
}

func decodeLoose(data []byte, format Format, v any) error {
	switch format {
	case FormatTOML:
		return toml.Unmarshal(data, v)
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func decodeStrict(data []byte, format Format, v any) error {
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
