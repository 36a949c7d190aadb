package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"recflow/internal/workflow"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		runID        string
		batchID      sql.NullString
		task         string
		input        string
		status       string
		flagged      int64
		flagReasons  sql.NullString
		failedStage  sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		artifacts    sql.NullString
		finalPath    sql.NullString
		logPath      sql.NullString
		startedRaw   string
		durationMS   int64
		recordedRaw  string
	)
	if err := scanner.Scan(
		&runID,
		&batchID,
		&task,
		&input,
		&status,
		&flagged,
		&flagReasons,
		&failedStage,
		&errorKind,
		&errorMessage,
		&artifacts,
		&finalPath,
		&logPath,
		&startedRaw,
		&durationMS,
		&recordedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		RunID:        runID,
		BatchID:      batchID.String,
		Task:         task,
		Input:        input,
		Status:       workflow.Status(status),
		Flagged:      flagged != 0,
		FailedStage:  failedStage.String,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
		FinalPath:    finalPath.String,
		LogPath:      logPath.String,
		Duration:     time.Duration(durationMS) * time.Millisecond,
	}
	if flagReasons.Valid && flagReasons.String != "" {
		_ = json.Unmarshal([]byte(flagReasons.String), &run.FlagReasons)
	}
	if artifacts.Valid && artifacts.String != "" {
		_ = json.Unmarshal([]byte(artifacts.String), &run.Artifacts)
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if recorded, err := parseTimeString(recordedRaw); err == nil {
		run.RecordedAt = recorded
	}
	return run, nil
}

func encodeJSON(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
