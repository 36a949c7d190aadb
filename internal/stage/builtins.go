package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"recflow/internal/record"
)

func passthrough(_ context.Context, rec *record.Record, _ Settings) (*record.Record, error) {
	return rec.Clone(), nil
}

// detrend removes the mean of every channel.
func detrend(_ context.Context, rec *record.Record, _ Settings) (*record.Record, error) {
	out := rec.Clone()
	for _, row := range out.Data {
		mean := meanOf(row)
		for i := range row {
			row[i] -= mean
		}
	}
	out.AddHistory("detrend")
	return out, nil
}

// lowpass smooths every channel with a centred moving average whose width is
// derived from cutoff_hz.
func lowpass(_ context.Context, rec *record.Record, s Settings) (*record.Record, error) {
	cutoff, err := s.Float("cutoff_hz", 40)
	if err != nil {
		return nil, err
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff_hz must be positive, got %v", cutoff)
	}
	width := int(math.Round(rec.SampleRate / (2 * cutoff)))
	out := rec.Clone()
	if width <= 1 {
		out.AddHistory(fmt.Sprintf("lowpass %.1fHz (no-op)", cutoff))
		return out, nil
	}
	half := width / 2
	for c, row := range rec.Data {
		smoothed := out.Data[c]
		for i := range row {
			lo := max(0, i-half)
			hi := min(len(row), i+half+1)
			smoothed[i] = meanOf(row[lo:hi])
		}
	}
	out.AddHistory(fmt.Sprintf("lowpass %.1fHz", cutoff))
	return out, nil
}

// resample decimates by the integer factor closest to rate/target_rate.
func resample(_ context.Context, rec *record.Record, s Settings) (*record.Record, error) {
	target, err := s.Float("target_rate", rec.SampleRate)
	if err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("target_rate must be positive, got %v", target)
	}
	factor := int(math.Round(rec.SampleRate / target))
	out := rec.Clone()
	if factor <= 1 {
		return out, nil
	}
	for c, row := range rec.Data {
		decimated := make([]float64, 0, len(row)/factor+1)
		for i := 0; i < len(row); i += factor {
			decimated = append(decimated, row[i])
		}
		out.Data[c] = decimated
	}
	for i := range out.Events {
		out.Events[i].Sample /= factor
	}
	out.SampleRate = rec.SampleRate / float64(factor)
	out.AddHistory(fmt.Sprintf("resample %.1fHz", out.SampleRate))
	return out, nil
}

// rereference subtracts the average of all good channels, or one named
// channel, from every sample.
func rereference(_ context.Context, rec *record.Record, s Settings) (*record.Record, error) {
	mode, err := s.String("reference", "average")
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	n := rec.Samples()
	ref := make([]float64, n)
	if mode == "average" {
		var used int
		for c, row := range rec.Data {
			if slices.Contains(rec.BadChans, rec.Channels[c]) {
				continue
			}
			used++
			for i, v := range row {
				ref[i] += v
			}
		}
		if used == 0 {
			return nil, errors.New("no good channels left for average reference")
		}
		for i := range ref {
			ref[i] /= float64(used)
		}
	} else {
		idx := rec.ChannelIndex(mode)
		if idx < 0 {
			return nil, fmt.Errorf("reference channel %q not found", mode)
		}
		copy(ref, rec.Data[idx])
	}
	for _, row := range out.Data {
		for i := range row {
			row[i] -= ref[i]
		}
	}
	out.AddHistory("rereference " + mode)
	return out, nil
}

// badChannels marks flat channels and channels whose spread exceeds
// threshold times the median spread. The run is flagged when more than
// max_bad_fraction of the channels are bad.
func badChannels(ctx context.Context, rec *record.Record, s Settings) (*record.Record, error) {
	threshold, err := s.Float("threshold", 5)
	if err != nil {
		return nil, err
	}
	maxFraction, err := s.Float("max_bad_fraction", 0.25)
	if err != nil {
		return nil, err
	}
	if len(rec.Data) == 0 {
		return rec.Clone(), nil
	}
	spreads := make([]float64, len(rec.Data))
	for c, row := range rec.Data {
		spreads[c] = stddev(row)
	}
	sorted := slices.Clone(spreads)
	slices.Sort(sorted)
	median := sorted[len(sorted)/2]

	out := rec.Clone()
	for c, spread := range spreads {
		name := rec.Channels[c]
		if slices.Contains(out.BadChans, name) {
			continue
		}
		if spread == 0 || (median > 0 && spread > threshold*median) {
			out.BadChans = append(out.BadChans, name)
		}
	}
	fraction := float64(len(out.BadChans)) / float64(len(rec.Channels))
	if fraction > maxFraction {
		FlagFromContext(ctx).Flag(fmt.Sprintf("%d of %d channels marked bad (%.0f%%)", len(out.BadChans), len(rec.Channels), fraction*100))
	}
	out.AddHistory(fmt.Sprintf("bad channels %v", out.BadChans))
	return out, nil
}

// epochs cuts the continuous data into fixed windows and rejects windows
// whose peak-to-peak amplitude exceeds reject_ptp.
func epochs(ctx context.Context, rec *record.Record, s Settings) (*record.Record, error) {
	length, err := s.Float("epoch_length", 2)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("epoch_length must be positive, got %v", length)
	}
	rejectPTP, err := s.Float("reject_ptp", 0)
	if err != nil {
		return nil, err
	}
	maxRejected, err := s.Float("max_rejected_fraction", 0.5)
	if err != nil {
		return nil, err
	}
	window := int(math.Round(length * rec.SampleRate))
	if window <= 0 || window > rec.Samples() {
		return nil, fmt.Errorf("recording of %.1fs is shorter than one %.1fs epoch", rec.DurationSeconds(), length)
	}

	out := rec.Clone()
	out.Epochs = out.Epochs[:0]
	var rejected int
	for start := 0; start+window <= rec.Samples(); start += window {
		epoch := record.Epoch{Start: start, End: start + window}
		if rejectPTP > 0 {
			for c, row := range rec.Data {
				if slices.Contains(rec.BadChans, rec.Channels[c]) {
					continue
				}
				seg := row[start : start+window]
				if ptp := slices.Max(seg) - slices.Min(seg); ptp > rejectPTP {
					epoch.Rejected = true
					epoch.Reason = fmt.Sprintf("%s peak-to-peak %.1f", rec.Channels[c], ptp)
					break
				}
			}
		}
		if epoch.Rejected {
			rejected++
		}
		out.Epochs = append(out.Epochs, epoch)
	}
	if fraction := float64(rejected) / float64(len(out.Epochs)); fraction > maxRejected {
		FlagFromContext(ctx).Flag(fmt.Sprintf("%d of %d epochs rejected", rejected, len(out.Epochs)))
	}
	out.AddHistory(fmt.Sprintf("epochs %d x %.1fs", len(out.Epochs), length))
	return out, nil
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}
