package stats

// SpeedSample is a running sum and count of speed observations.
type SpeedSample struct {
	Sum   float64
	Count int
}

// Mean returns Sum/Count, or 0 when empty.
func (s SpeedSample) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// SpeedAggregator stores one network-wide average speed per tick and, for
// the per-segment report, moving-vehicle speed samples keyed by segment and
// vehicle color.
type SpeedAggregator struct {
	history []float64
	// segment id -> color -> sample
	bySegment map[string]map[string]SpeedSample
}

// NewSpeedAggregator creates an empty aggregator.
func NewSpeedAggregator() *SpeedAggregator {
	return &SpeedAggregator{bySegment: make(map[string]map[string]SpeedSample)}
}

// RecordTick appends the average speed of moving entities for tick.
// Ticks must be recorded in order starting at 1.
func (sa *SpeedAggregator) RecordTick(tick int, active []EntitySnapshot) {
	var sum float64
	var moving int
	for _, e := range active {
		if e.Speed <= 0 {
			continue
		}
		sum += e.Speed
		moving++

		if e.SegmentID == "" {
			continue
		}
		colors := sa.bySegment[e.SegmentID]
		if colors == nil {
			colors = make(map[string]SpeedSample)
			sa.bySegment[e.SegmentID] = colors
		}
		s := colors[e.Color]
		s.Sum += e.Speed
		s.Count++
		colors[e.Color] = s
	}

	avg := 0.0
	if moving > 0 {
		avg = sum / float64(moving)
	}

	// Index tick-1 holds this tick's value; a skipped tick reads as 0.
	for len(sa.history) < tick-1 {
		sa.history = append(sa.history, 0)
	}
	sa.history = append(sa.history[:tick-1], avg)
}

// CurrentAverage returns the latest tick's average, or 0 before any tick.
func (sa *SpeedAggregator) CurrentAverage() float64 {
	if len(sa.history) == 0 {
		return 0
	}
	return sa.history[len(sa.history)-1]
}

// At returns the average for a 1-based tick.
func (sa *SpeedAggregator) At(tick int) (float64, bool) {
	if tick < 1 || tick > len(sa.history) {
		return 0, false
	}
	return sa.history[tick-1], true
}

// History returns a copy of all per-tick averages in tick order.
func (sa *SpeedAggregator) History() []float64 {
	out := make([]float64, len(sa.history))
	copy(out, sa.history)
	return out
}

// SegmentSamples returns a deep copy of the per-segment, per-color samples.
func (sa *SpeedAggregator) SegmentSamples() map[string]map[string]SpeedSample {
	out := make(map[string]map[string]SpeedSample, len(sa.bySegment))
	for seg, colors := range sa.bySegment {
		c := make(map[string]SpeedSample, len(colors))
		for color, s := range colors {
			c[color] = s
		}
		out[seg] = c
	}
	return out
}
