package record

import (
	"errors"
	"fmt"
	"slices"
)

// Event marks a labelled sample position.
type Event struct {
	Sample int    `json:"sample"`
	Label  string `json:"label"`
}

// Epoch is a fixed window of samples cut from the continuous data.
type Epoch struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Rejected bool   `json:"rejected,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Record is a multichannel recording plus the derived state stages add.
type Record struct {
	Source     string      `json:"source"`
	SampleRate float64     `json:"sample_rate"`
	Channels   []string    `json:"channels"`
	Data       [][]float64 `json:"data"`
	Events     []Event     `json:"events,omitempty"`
	Epochs     []Epoch     `json:"epochs,omitempty"`
	BadChans   []string    `json:"bad_channels,omitempty"`
	History    []string    `json:"history,omitempty"`
}

// Samples returns the number of samples per channel.
func (r *Record) Samples() int {
	if r == nil || len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// DurationSeconds is the recording length in seconds.
func (r *Record) DurationSeconds() float64 {
	if r == nil || r.SampleRate <= 0 {
		return 0
	}
	return float64(r.Samples()) / r.SampleRate
}

// Check verifies the record is internally consistent.
func (r *Record) Check() error {
	if r == nil {
		return errors.New("record is nil")
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", r.SampleRate)
	}
	if len(r.Channels) == 0 {
		return errors.New("record has no channels")
	}
	if len(r.Channels) != len(r.Data) {
		return fmt.Errorf("record has %d channel names but %d data rows", len(r.Channels), len(r.Data))
	}
	n := len(r.Data[0])
	for i, row := range r.Data {
		if len(row) != n {
			return fmt.Errorf("channel %s has %d samples, expected %d", r.Channels[i], len(row), n)
		}
	}
	return nil
}

// AddHistory appends a processing note.
func (r *Record) AddHistory(entry string) {
	r.History = append(r.History, entry)
}

// Clone deep-copies the record so a stage can return a modified copy without
// touching its input.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := &Record{
		Source:     r.Source,
		SampleRate: r.SampleRate,
		Channels:   slices.Clone(r.Channels),
		Events:     slices.Clone(r.Events),
		Epochs:     slices.Clone(r.Epochs),
		BadChans:   slices.Clone(r.BadChans),
		History:    slices.Clone(r.History),
	}
	clone.Data = make([][]float64, len(r.Data))
	for i, row := range r.Data {
		clone.Data[i] = slices.Clone(row)
	}
	return clone
}

// ChannelIndex returns the row of a named channel or -1.
func (r *Record) ChannelIndex(name string) int {
	return slices.Index(r.Channels, name)
}
