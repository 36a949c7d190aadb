package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrValidation      = errors.New("validation error")
	ErrDiscovery       = errors.New("discovery error")
	ErrImport          = errors.New("import error")
	ErrStageExecution  = errors.New("stage execution error")
	ErrArtifactPersist = errors.New("artifact persist error")
	ErrMisuse          = errors.New("orchestrator misuse")
	ErrNotFound        = errors.New("not found")
)

var markers = []error{
	ErrConfiguration,
	ErrValidation,
	ErrDiscovery,
	ErrImport,
	ErrStageExecution,
	ErrArtifactPersist,
	ErrMisuse,
	ErrNotFound,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is a flattened view of a wrapped error for outcome reporting.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details classifies err against the known markers and strips the marker
// prefix from the message so it reads well in summaries.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range markers {
		if errors.Is(err, marker) {
			prefix := marker.Error() + ": "
			return ErrorDetails{
				Kind:    kindLabel(marker),
				Message: strings.TrimPrefix(msg, prefix),
			}
		}
	}
	return ErrorDetails{Kind: "unknown", Message: msg}
}

func kindLabel(marker error) string {
	switch marker {
	case ErrConfiguration:
		return "configuration"
	case ErrValidation:
		return "validation"
	case ErrDiscovery:
		return "discovery"
	case ErrImport:
		return "import"
	case ErrStageExecution:
		return "stage_execution"
	case ErrArtifactPersist:
		return "artifact_persist"
	case ErrMisuse:
		return "misuse"
	case ErrNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
