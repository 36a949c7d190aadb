package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"recflow/internal/config"
	"recflow/internal/record"
	"recflow/internal/runconfig"
	"recflow/internal/stage"
	"recflow/internal/taskdef"
	"recflow/internal/testsupport"
	"recflow/internal/workflow"
)

func testDefinition() *taskdef.Definition {
	return &taskdef.Definition{
		Name:           "resting",
		Origin:         taskdef.OriginBuiltin,
		RequiredStages: []string{"post_import", "post_clean_raw"},
		Stages: []taskdef.StageSpec{
			{Name: "post_clean_raw", Compute: "detrend"},
			{Name: "post_epochs", Compute: "check"},
			{Name: "post_comp", Compute: "passthrough"},
		},
	}
}

// testCatalog adds a "check" computation that fails for inputs whose name
// contains "bad".
func testCatalog() *stage.Catalog {
	catalog := stage.Builtins()
	catalog.Register("check", stage.Func(func(_ context.Context, rec *record.Record, _ stage.Settings) (*record.Record, error) {
		if strings.Contains(rec.Source, "bad") {
			return nil, errors.New("artifact-laden segment")
		}
		return rec.Clone(), nil
	}))
	return catalog
}

type countingImporter struct {
	calls atomic.Int64
}

func (c *countingImporter) Import(_ context.Context, cfg *runconfig.RunConfig) (*record.Record, error) {
	c.calls.Add(1)
	row := make([]float64, 120)
	for i := range row {
		row[i] = float64(i % 5)
	}
	return &record.Record{Source: cfg.Input, SampleRate: 1, Channels: []string{"Cz"}, Data: [][]float64{row}}, nil
}

type mapResolver map[string]*taskdef.Definition

func (m mapResolver) Resolve(_ context.Context, name string) (*taskdef.Definition, bool) {
	def, ok := m[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []workflow.RunOutcome
	err      error
}

func (m *memoryRecorder) Record(_ context.Context, outcome workflow.RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return m.err
}

type fixture struct {
	cfg      *config.Config
	importer *countingImporter
	recorder *memoryRecorder
	orch     *workflow.Orchestrator
	capture  *testsupport.LogCapture
}

func newFixture(t *testing.T, opts ...workflow.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	logger, capture := testsupport.NewCaptureLogger()
	f := &fixture{
		cfg:      cfg,
		importer: &countingImporter{},
		recorder: &memoryRecorder{},
		capture:  capture,
	}
	var ids atomic.Int64
	base := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithImporter(f.importer),
		workflow.WithComputations(testCatalog()),
		workflow.WithRecorder(f.recorder),
		workflow.WithRunIDs(func() string { return fmt.Sprintf("run-%03d", ids.Add(1)) }),
	}
	f.orch = workflow.New(cfg, mapResolver{"resting": testDefinition()}, append(base, opts...)...)
	return f
}

func inputs(names ...string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = "/data/" + name + ".csv"
	}
	return out
}
