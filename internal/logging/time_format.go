package logging

import "time"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
