package runstore

import (
	"time"

	"recflow/internal/workflow"
)

// Run is one recorded run outcome.
type Run struct {
	RunID        string            `json:"run_id"`
	BatchID      string            `json:"batch_id,omitempty"`
	Task         string            `json:"task"`
	Input        string            `json:"input"`
	Status       workflow.Status   `json:"status"`
	Flagged      bool              `json:"flagged"`
	FlagReasons  []string          `json:"flag_reasons,omitempty"`
	FailedStage  string            `json:"failed_stage,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	FinalPath    string            `json:"final_path,omitempty"`
	LogPath      string            `json:"log_path,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     time.Duration     `json:"duration"`
	RecordedAt   time.Time         `json:"recorded_at"`
}

// Failed reports whether the run failed.
func (r Run) Failed() bool {
	return r.Status == workflow.StatusFailed
}

// ListOptions filters List results. A zero Limit returns every match.
type ListOptions struct {
	Task       string
	BatchID    string
	FailedOnly bool
	Limit      int
}

// Stats counts recorded runs.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	Flagged   int
}
