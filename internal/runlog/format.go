package runlog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Entry is one decoded JSON log line.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	EventType string
	Stage     string
	Fields    map[string]any
}

// reserved keys are rendered in fixed positions rather than as fields.
var reserved = map[string]bool{
	"ts": true, "level": true, "msg": true, "event_type": true, "stage": true,
	"run_id": true, "task": true, "component": true, "source": true,
}

// Parse decodes a JSON log line.
func Parse(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("decode log line: %w", err)
	}
	entry := Entry{
		Level:     str(raw["level"]),
		Message:   str(raw["msg"]),
		EventType: str(raw["event_type"]),
		Stage:     str(raw["stage"]),
		Fields:    make(map[string]any),
	}
	if ts := str(raw["ts"]); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Time = parsed
		}
	}
	for key, value := range raw {
		if !reserved[key] {
			entry.Fields[key] = value
		}
	}
	return entry, nil
}

// Format renders a log line for a terminal. Lines that are not JSON are
// returned unchanged.
func Format(line string) string {
	entry, err := Parse(line)
	if err != nil {
		return line
	}
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(entry.Level))
	if entry.Stage != "" {
		fmt.Fprintf(&b, "[%s] ", entry.Stage)
	}
	b.WriteString(entry.Message)
	if entry.EventType != "" {
		fmt.Fprintf(&b, " (%s)", entry.EventType)
	}
	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[key])
	}
	return b.String()
}

func str(value any) string {
	s, _ := value.(string)
	return s
}
