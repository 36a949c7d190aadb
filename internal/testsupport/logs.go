package testsupport

import (
	"context"
	"log/slog"
	"sync"
)

// LogCapture records every log line emitted through the logger returned by
// NewCaptureLogger.
type LogCapture struct {
	mu      sync.Mutex
	records []CapturedRecord
}

// CapturedRecord is one captured log line with its attributes flattened.
// Keys lists every attribute key in emission order, repeats included.
type CapturedRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
	Keys    []string
}

// NewCaptureLogger returns a debug-level logger and the capture behind it.
func NewCaptureLogger() (*slog.Logger, *LogCapture) {
	capture := &LogCapture{}
	return slog.New(&captureHandler{capture: capture}), capture
}

// Records returns a copy of everything captured so far.
func (c *LogCapture) Records() []CapturedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Events returns captured records whose event_type equals eventType.
func (c *LogCapture) Events(eventType string) []CapturedRecord {
	var out []CapturedRecord
	for _, rec := range c.Records() {
		if rec.Attrs["event_type"] == eventType {
			out = append(out, rec)
		}
	}
	return out
}

func (c *LogCapture) add(rec CapturedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

type captureHandler struct {
	capture *LogCapture
	attrs   []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	keys := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		attrs[attr.Key] = attr.Value.Resolve().Any()
		keys = append(keys, attr.Key)
	}
	r.Attrs(func(attr slog.Attr) bool {
		attrs[attr.Key] = attr.Value.Resolve().Any()
		keys = append(keys, attr.Key)
		return true
	})
	h.capture.add(CapturedRecord{Level: r.Level, Message: r.Message, Attrs: attrs, Keys: keys})
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{capture: h.capture, attrs: merged}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }
