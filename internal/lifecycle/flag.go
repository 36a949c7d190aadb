package lifecycle

import (
	"slices"
	"strings"
	"sync"
)

// QualityFlag marks a run for human review. Reasons are only appended.
type QualityFlag struct {
	mu      sync.Mutex
	flagged bool
	reasons []string
}

// Flag appends reason and sets the flag. Blank reasons still flag the run.
func (q *QualityFlag) Flag(reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flagged = true
	if reason = strings.TrimSpace(reason); reason != "" {
		q.reasons = append(q.reasons, reason)
	}
}

// Snapshot returns an immutable copy of the flag.
func (q *QualityFlag) Snapshot() FlagSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return FlagSnapshot{Flagged: q.flagged, Reasons: slices.Clone(q.reasons)}
}

// FlagSnapshot is the value of a QualityFlag at one point in time.
type FlagSnapshot struct {
	Flagged bool     `json:"flagged"`
	Reasons []string `json:"reasons,omitempty"`
}
