package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DensityTracker stores, per road segment, a time series of occupancy
// density samples (vehicles per unit length).
type DensityTracker struct {
	history map[string][]float64
	lengths map[string]float64
}

// NewDensityTracker creates an empty tracker.
func NewDensityTracker() *DensityTracker {
	return &DensityTracker{
		history: make(map[string][]float64),
		lengths: make(map[string]float64),
	}
}

// RecordTick appends count/length for every segment in segments. Segments
// with a non-positive length record 0. A segment missing from counts is
// treated as empty.
func (dt *DensityTracker) RecordTick(segments []string, counts map[string]int, lengths map[string]float64) {
	for _, id := range segments {
		length := lengths[id]
		density := 0.0
		if length > 0 {
			density = float64(counts[id]) / length
		}
		dt.history[id] = append(dt.history[id], density)
		dt.lengths[id] = length
	}
}

// AverageDensity is the arithmetic mean of the segment's full history,
// recomputed on every call. Unknown segments return 0.
func (dt *DensityTracker) AverageDensity(segmentID string) float64 {
	samples := dt.history[segmentID]
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// History returns a copy of one segment's samples.
func (dt *DensityTracker) History(segmentID string) []float64 {
	samples := dt.history[segmentID]
	out := make([]float64, len(samples))
	copy(out, samples)
	return out
}

// Segments returns every segment id that has at least one sample, sorted.
func (dt *DensityTracker) Segments() []string {
	ids := make([]string, 0, len(dt.history))
	for id := range dt.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Histories returns a deep copy of all series.
func (dt *DensityTracker) Histories() map[string][]float64 {
	out := make(map[string][]float64, len(dt.history))
	for id := range dt.history {
		out[id] = dt.History(id)
	}
	return out
}

// Lengths returns the last observed length per segment.
func (dt *DensityTracker) Lengths() map[string]float64 {
	out := make(map[string]float64, len(dt.lengths))
	for id, l := range dt.lengths {
		out[id] = l
	}
	return out
}
