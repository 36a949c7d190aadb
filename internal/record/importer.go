package record

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"recflow/internal/runconfig"
	"recflow/internal/services"
)

// Importer loads the input of a run into memory.
type Importer interface {
	Import(ctx context.Context, cfg *runconfig.RunConfig) (*Record, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(ctx context.Context, cfg *runconfig.RunConfig) (*Record, error)

// Import calls f.
func (f ImporterFunc) Import(ctx context.Context, cfg *runconfig.RunConfig) (*Record, error) {
	return f(ctx, cfg)
}

// DefaultSampleRate applies to CSV inputs that carry no sample rate header
// and no sample_rate setting.
const DefaultSampleRate = 250.0

// FileImporter reads CSV and JSON recordings. A nil FS reads the local
// filesystem.
type FileImporter struct {
	FS afero.Fs
}

// Import loads cfg.Input. Failures match services.ErrImport.
func (f FileImporter) Import(ctx context.Context, cfg *runconfig.RunConfig) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := cfg.Input
	fsys := f.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	file, err := fsys.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrImport, "import", "open input", filepath.Base(path), err)
	}
	defer file.Close()

	var rec *Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rec, err = decodeJSON(file)
	case ".csv", ".txt":
		rec, err = decodeCSV(file, sampleRateSetting(cfg.Settings))
	default:
		return nil, services.Wrap(services.ErrImport, "import", "detect format", "unsupported input extension "+filepath.Ext(path), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrImport, "import", "decode input", filepath.Base(path), err)
	}
	rec.Source = path
	if err := rec.Check(); err != nil {
		return nil, services.Wrap(services.ErrImport, "import", "check input", filepath.Base(path), err)
	}
	return rec, nil
}

func decodeJSON(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeCSV(r io.Reader, fallbackRate float64) (*Record, error) {
	buffered := bufio.NewReader(r)
	rate := fallbackRate
	for {
		peek, err := buffered.Peek(1)
		if err != nil || len(peek) == 0 || peek[0] != '#' {
			break
		}
		line, err := buffered.ReadString('\n')
		if value, ok := parseHeaderRate(line); ok {
			rate = value
		}
		if err != nil {
			break
		}
	}

	reader := csv.NewReader(buffered)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty recording")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	rec := &Record{SampleRate: rate}
	for _, name := range header {
		rec.Channels = append(rec.Channels, strings.TrimSpace(name))
	}
	rec.Data = make([][]float64, len(header))
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, cell := range row {
			value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, rec.Channels[i], err)
			}
			rec.Data[i] = append(rec.Data[i], value)
		}
	}
	return rec, nil
}

func parseHeaderRate(line string) (float64, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
	key, value, ok := strings.Cut(line, "=")
	if !ok || strings.TrimSpace(key) != "sample_rate" {
		return 0, false
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func sampleRateSetting(settings map[string]any) float64 {
	switch v := settings["sample_rate"].(type) {
	case float64:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return float64(v)
		}
	case int:
		if v > 0 {
			return float64(v)
		}
	}
	return DefaultSampleRate
}
