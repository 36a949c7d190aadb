package workflow

import (
	"time"

	"recflow/internal/lifecycle"
)

// Status is the terminal status of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunOutcome is the immutable result of one run.
type RunOutcome struct {
	RunID        string
	BatchID      string
	Task         string
	Input        string
	Status       Status
	Flag         lifecycle.FlagSnapshot
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	Err          error
	Artifacts    map[string]string
	FinalPath    string
	LogPath      string
	StartedAt    time.Time
	Duration     time.Duration
}

// Failed reports whether the run failed.
func (o RunOutcome) Failed() bool {
	return o.Status == StatusFailed
}

// BatchSummary aggregates the outcomes of one RunMany call. Outcomes are in
// completion order, not input order.
type BatchSummary struct {
	BatchID     string
	Task        string
	Root        string
	BackupPath  string
	Concurrency int
	Outcomes    []RunOutcome
	Completed   int
	Failed      int
	Flagged     int
	Interrupted bool
	Skipped     int
	Duration    time.Duration
}

// Total is the number of runs that executed.
func (s BatchSummary) Total() int {
	return len(s.Outcomes)
}

// Failures returns the failed outcomes.
func (s BatchSummary) Failures() []RunOutcome {
	var out []RunOutcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

func (s *BatchSummary) add(o RunOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Failed() {
		s.Failed++
	} else {
		s.Completed++
	}
	if o.Flag.Flagged {
		s.Flagged++
	}
}
