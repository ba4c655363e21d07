package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Snapshot is a detached copy of the engine state at one tick boundary.
// It is safe to read without synchronisation.
type Snapshot struct {
	RunID                 string
	Tick                  int
	Time                  float64
	MinStoppedVehicles    int
	StoppedSpeedThreshold float64

	SpeedHistory  []float64
	SegmentSpeeds map[string]map[string]SpeedSample // segment -> color -> sample

	DensityHistory map[string][]float64
	SegmentLengths map[string]float64
	KnownSegments  []string

	CurrentCongestion    map[string]int
	HistoricalCongestion map[string]int

	Routes               map[string][]string
	RouteSamples         map[string][]float64
	UnknownRouteVehicles int

	Vehicles []VehicleRecord

	ControlPoints      int
	ControlPointsKnown bool
	WarningCount       int
}

// CurrentAverageSpeed returns the last value of the speed history.
func (s *Snapshot) CurrentAverageSpeed() float64 {
	if len(s.SpeedHistory) == 0 {
		return 0
	}
	return s.SpeedHistory[len(s.SpeedHistory)-1]
}

// AverageDensity returns the mean of a segment's density history.
func (s *Snapshot) AverageDensity(segmentID string) float64 {
	h := s.DensityHistory[segmentID]
	if len(h) == 0 {
		return 0
	}
	return stat.Mean(h, nil)
}

// AverageTravelTime returns the mean of a route's travel-time samples.
func (s *Snapshot) AverageTravelTime(routeID string) float64 {
	samples := s.RouteSamples[routeID]
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// TravelTimePercentile returns the empirical p-quantile of a route's
// travel times, 0 without samples.
func (s *Snapshot) TravelTimePercentile(routeID string, p float64) float64 {
	return quantile(append([]float64(nil), s.RouteSamples[routeID]...), p)
}

// TravelTimeStdDev returns the sample standard deviation of a route's
// travel times, 0 with fewer than two samples.
func (s *Snapshot) TravelTimeStdDev(routeID string) float64 {
	samples := s.RouteSamples[routeID]
	if len(samples) < 2 {
		return 0
	}
	return stat.StdDev(samples, nil)
}

// CompletedVehicles returns records with exit > entry, in observation order.
func (s *Snapshot) CompletedVehicles() []VehicleRecord {
	var out []VehicleRecord
	for _, v := range s.Vehicles {
		if v.Completed() {
			out = append(out, v)
		}
	}
	return out
}

// DensitySegments returns ids of segments with density samples, sorted.
func (s *Snapshot) DensitySegments() []string {
	return sortedKeys(s.DensityHistory)
}

// RouteIDs returns the static route ids, sorted.
func (s *Snapshot) RouteIDs() []string {
	return sortedKeys(s.Routes)
}

// SpeedSegments returns ids of segments with speed samples, sorted.
func (s *Snapshot) SpeedSegments() []string {
	return sortedKeys(s.SegmentSpeeds)
}

// CongestedSegments returns ids of ever-congested segments, sorted.
func (s *Snapshot) CongestedSegments() []string {
	return sortedKeys(s.HistoricalCongestion)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
