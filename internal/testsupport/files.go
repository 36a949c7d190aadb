package testsupport

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteRecording writes a CSV recording with the given channel count and
// duration. Channel i carries a sine wave of frequency i+1 Hz so stages have
// non-trivial data to work on.
func WriteRecording(t testing.TB, path string, channels int, rate float64, seconds float64) {
	t.Helper()

	if channels <= 0 {
		channels = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# sample_rate=%g\n", rate)
	names := make([]string, channels)
	for c := range names {
		names[c] = fmt.Sprintf("ch%d", c+1)
	}
	b.WriteString(strings.Join(names, ","))
	b.WriteByte('\n')

	samples := int(rate * seconds)
	row := make([]string, channels)
	for i := range samples {
		for c := range row {
			v := math.Sin(2 * math.Pi * float64(c+1) * float64(i) / rate)
			row[c] = fmt.Sprintf("%.6f", v)
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
