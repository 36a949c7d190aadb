package stage

import (
	"context"
	"fmt"

	"recflow/internal/record"
)

// Computation transforms a record for one stage.
type Computation interface {
	Compute(ctx context.Context, rec *record.Record, settings Settings) (*record.Record, error)
}

// Func adapts a function to the Computation interface.
type Func func(ctx context.Context, rec *record.Record, settings Settings) (*record.Record, error)

// Compute calls f.
func (f Func) Compute(ctx context.Context, rec *record.Record, settings Settings) (*record.Record, error) {
	return f(ctx, rec, settings)
}

// Settings exposes stage parameters with a fallback to task settings.
type Settings struct {
	Params map[string]any
	Task   map[string]any
}

// Value returns the stage parameter, or the task setting of the same name.
func (s Settings) Value(key string) (any, bool) {
	if v, ok := s.Params[key]; ok {
		return v, true
	}
	v, ok := s.Task[key]
	return v, ok
}

// Float reads a numeric value or returns def when absent.
func (s Settings) Float(key string, def float64) (float64, error) {
	v, ok := s.Value(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("setting %s must be numeric, got %T", key, v)
	}
}

// String reads a string value or returns def when absent.
func (s Settings) String(key, def string) (string, error) {
	v, ok := s.Value(key)
	if !ok {
		return def, nil
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("setting %s must be a string, got %T", key, v)
	}
	return str, nil
}
