package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// RouteTravelTimes derives per-route travel-time samples from completed
// vehicle lifecycles. The route table is fixed at construction; vehicles on
// routes outside it are counted but never create new routes.
type RouteTravelTimes struct {
	routes  map[string][]string
	samples map[string][]float64
	unknown int
}

// NewRouteTravelTimes creates a tracker seeded with a static route table.
func NewRouteTravelTimes(routes map[string][]string) *RouteTravelTimes {
	rt := &RouteTravelTimes{
		routes:  make(map[string][]string, len(routes)),
		samples: make(map[string][]float64, len(routes)),
	}
	for id, segs := range routes {
		rt.routes[id] = append([]string(nil), segs...)
		rt.samples[id] = nil
	}
	return rt
}

// Recompute rebuilds every route's samples from scratch. Calling it any
// number of times with the same records yields the same state.
func (rt *RouteTravelTimes) Recompute(records []VehicleRecord) {
	for id := range rt.samples {
		rt.samples[id] = rt.samples[id][:0]
	}
	rt.unknown = 0

	sorted := make([]VehicleRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	for _, v := range sorted {
		if !v.Completed() {
			continue
		}
		if _, ok := rt.routes[v.RouteID]; !ok {
			rt.unknown++
			continue
		}
		rt.samples[v.RouteID] = append(rt.samples[v.RouteID], v.TravelTime())
	}
}

// HasRoute reports whether id is in the static route table.
func (rt *RouteTravelTimes) HasRoute(id string) bool {
	_, ok := rt.routes[id]
	return ok
}

// AverageForRoute returns the mean travel time for a route, or 0 for a
// route with no samples or one not in the table.
func (rt *RouteTravelTimes) AverageForRoute(id string) float64 {
	s := rt.samples[id]
	if len(s) == 0 {
		return 0
	}
	return stat.Mean(s, nil)
}

// Percentile returns the empirical p-quantile (0..1) of a route's travel
// times, or 0 when there are no samples.
func (rt *RouteTravelTimes) Percentile(id string, p float64) float64 {
	return quantile(rt.Samples(id), p)
}

// quantile sorts s in place and returns its empirical p-quantile, with p
// clamped to [0, 1].
func quantile(s []float64, p float64) float64 {
	if len(s) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	sort.Float64s(s)
	return stat.Quantile(p, stat.Empirical, s, nil)
}

// Samples returns a copy of one route's travel-time samples.
func (rt *RouteTravelTimes) Samples(id string) []float64 {
	s := rt.samples[id]
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

// UnknownRouteVehicles is the number of completed vehicles in the last
// Recompute whose route is not in the table.
func (rt *RouteTravelTimes) UnknownRouteVehicles() int {
	return rt.unknown
}

// Routes returns a copy of the static route table.
func (rt *RouteTravelTimes) Routes() map[string][]string {
	out := make(map[string][]string, len(rt.routes))
	for id, segs := range rt.routes {
		out[id] = append([]string(nil), segs...)
	}
	return out
}

// AllSamples returns a deep copy of every route's samples, including
// empty slices for routes without completions.
func (rt *RouteTravelTimes) AllSamples() map[string][]float64 {
	out := make(map[string][]float64, len(rt.samples))
	for id := range rt.samples {
		out[id] = rt.Samples(id)
	}
	return out
}
