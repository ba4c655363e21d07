package stats

// Congestion detection defaults.
const (
	DefaultMinStoppedVehicles    = 3
	DefaultStoppedSpeedThreshold = 0.5
)

// CongestionDetector classifies segments as congested per tick and keeps
// the highest stopped-vehicle count ever seen per segment. A segment that
// never reaches the threshold is absent from both views.
type CongestionDetector struct {
	minStopped    int
	stoppedSpeed  float64
	current       map[string]int
	historicalMax map[string]int
}

// NewCongestionDetector creates a detector. Non-positive minStopped and
// negative stoppedSpeed fall back to the defaults.
func NewCongestionDetector(minStopped int, stoppedSpeed float64) *CongestionDetector {
	if minStopped < 1 {
		minStopped = DefaultMinStoppedVehicles
	}
	if stoppedSpeed < 0 {
		stoppedSpeed = DefaultStoppedSpeedThreshold
	}
	return &CongestionDetector{
		minStopped:    minStopped,
		stoppedSpeed:  stoppedSpeed,
		current:       make(map[string]int),
		historicalMax: make(map[string]int),
	}
}

// MinStoppedVehicles returns the congestion threshold.
func (cd *CongestionDetector) MinStoppedVehicles() int { return cd.minStopped }

// StoppedSpeedThreshold returns the speed at or below which a vehicle counts as stopped.
func (cd *CongestionDetector) StoppedSpeedThreshold() float64 { return cd.stoppedSpeed }

// RecordTick replaces the instantaneous view with this tick's congested
// segments and raises historical maxima where exceeded.
func (cd *CongestionDetector) RecordTick(active []EntitySnapshot) {
	cd.current = make(map[string]int)

	stopped := make(map[string]int)
	for _, e := range active {
		if e.SegmentID == "" || e.Speed > cd.stoppedSpeed {
			continue
		}
		stopped[e.SegmentID]++
	}

	for seg, n := range stopped {
		if n < cd.minStopped {
			continue
		}
		cd.current[seg] = n
		if prev, ok := cd.historicalMax[seg]; !ok || n > prev {
			cd.historicalMax[seg] = n
		}
	}
}

// Reset clears the instantaneous view without touching history. Used when
// a tick has no entity data.
func (cd *CongestionDetector) Reset() {
	cd.current = make(map[string]int)
}

// CurrentCongestion returns a copy of the instantaneous view.
func (cd *CongestionDetector) CurrentCongestion() map[string]int {
	return copyCounts(cd.current)
}

// HistoricalCongestion returns a copy of the historical-maximum view.
func (cd *CongestionDetector) HistoricalCongestion() map[string]int {
	return copyCounts(cd.historicalMax)
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
