package runconfig

import (
	"fmt"

	"recflow/internal/services"
)

// MissingFieldError reports an absent base field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return services.ErrConfiguration }

// TypeFieldError reports a field whose value has the wrong type.
type TypeFieldError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *TypeFieldError) Error() string {
	return fmt.Sprintf("field %q must be of type %s, got %s instead", e.Field, e.Expected, e.Actual)
}

func (e *TypeFieldError) Unwrap() error { return services.ErrConfiguration }

// StageConfigError reports a missing or malformed stage map entry.
type StageConfigError struct {
	Stage   string
	Problem string
}

func (e *StageConfigError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Problem)
}

func (e *StageConfigError) Unwrap() error { return services.ErrConfiguration }
