package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/traffic.report/internal/stats"
	"github.com/banshee-data/traffic.report/internal/units"
)

// Section is one rendered report kind: a table for the tabular and sqlite
// formats, prose lines for narrative, and a labelled series for charts.
type Section struct {
	Kind   Kind
	Header []string
	Rows   [][]string
	Lines  []string

	// Labels and Values feed bar charts; ValueName labels the value axis.
	Labels    []string
	Values    []float64
	ValueName string

	// Trend, when set, is plotted as a line instead of bars.
	Trend []float64
}

// Empty reports whether the filter excluded every candidate.
func (s *Section) Empty() bool {
	return len(s.Rows) == 0
}

func (s *Section) add(row []string, line string, label string, value float64) {
	s.Rows = append(s.Rows, row)
	s.Lines = append(s.Lines, line)
	s.Labels = append(s.Labels, label)
	s.Values = append(s.Values, value)
}

func ff(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// buildSections renders the requested kinds, in order and deduplicated.
func buildSections(snap *stats.Snapshot, f Filter, kinds []Kind, unit string) ([]Section, error) {
	if len(kinds) == 0 {
		return nil, ErrNoKinds
	}
	kinds = dedupeKinds(kinds)
	out := make([]Section, 0, len(kinds))
	for _, k := range kinds {
		sec, err := buildSection(snap, f, k, unit)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}

func buildSection(snap *stats.Snapshot, f Filter, k Kind, unit string) (Section, error) {
	switch k {
	case AverageSpeed:
		return averageSpeedSection(snap, f, unit), nil
	case AverageTravelTime:
		return averageTravelTimeSection(snap, f), nil
	case EdgeDensity:
		return edgeDensitySection(snap, f), nil
	case CongestedSegments:
		return congestedSegmentsSection(snap, f), nil
	case VehicleTravelTimes:
		return vehicleTravelTimesSection(snap, f), nil
	case Summary:
		return summarySection(snap, unit), nil
	}
	return Section{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

func averageSpeedSection(snap *stats.Snapshot, f Filter, unit string) Section {
	label := units.Label(unit)
	sec := Section{
		Kind:      AverageSpeed,
		Header:    []string{"segment_id", "samples", "average_speed_" + unit},
		ValueName: "Speed (" + label + ")",
	}
	for _, seg := range snap.SpeedSegments() {
		if !f.matchSegment(seg) {
			continue
		}
		var agg stats.SpeedSample
		for color, sample := range snap.SegmentSpeeds[seg] {
			if !f.matchColor(color) {
				continue
			}
			agg.Sum += sample.Sum
			agg.Count += sample.Count
		}
		if agg.Count == 0 {
			continue
		}
		avg := units.ConvertSpeed(agg.Mean(), unit)
		sec.add(
			[]string{seg, strconv.Itoa(agg.Count), ff(avg, 2)},
			fmt.Sprintf("Segment %s: average speed %.2f %s over %d samples.", seg, avg, label, agg.Count),
			seg, avg,
		)
	}
	return sec
}

func averageTravelTimeSection(snap *stats.Snapshot, f Filter) Section {
	sec := Section{
		Kind:      AverageTravelTime,
		Header:    []string{"route_id", "segments", "samples", "average_travel_time_s", "p85_travel_time_s", "stddev_travel_time_s"},
		ValueName: "Travel time (s)",
	}
	for _, id := range snap.RouteIDs() {
		if !f.matchRoute(id) {
			continue
		}
		avg := snap.AverageTravelTime(id)
		if !f.meetsTravelTime(avg) {
			continue
		}
		n := len(snap.RouteSamples[id])
		p85 := snap.TravelTimePercentile(id, 0.85)
		sd := snap.TravelTimeStdDev(id)
		segs := joinIDs(snap.Routes[id])
		line := fmt.Sprintf("Route %s (%s): no vehicle has completed this route.", id, segs)
		if n > 0 {
			line = fmt.Sprintf("Route %s (%s): average travel time %.2f s (sd %.2f s), 85th percentile %.2f s, from %d vehicles.", id, segs, avg, sd, p85, n)
		}
		sec.add(
			[]string{id, segs, strconv.Itoa(n), ff(avg, 2), ff(p85, 2), ff(sd, 2)},
			line, id, avg,
		)
	}
	return sec
}

func edgeDensitySection(snap *stats.Snapshot, f Filter) Section {
	sec := Section{
		Kind:      EdgeDensity,
		Header:    []string{"segment_id", "length_m", "samples", "average_density"},
		ValueName: "Vehicles per metre",
	}
	for _, seg := range snap.DensitySegments() {
		if !f.matchSegment(seg) {
			continue
		}
		avg := snap.AverageDensity(seg)
		if !f.meetsDensity(avg) {
			continue
		}
		if f.CongestedOnly {
			if _, ok := snap.HistoricalCongestion[seg]; !ok {
				continue
			}
		}
		length := snap.SegmentLengths[seg]
		n := len(snap.DensityHistory[seg])
		sec.add(
			[]string{seg, ff(length, 1), strconv.Itoa(n), ff(avg, 4)},
			fmt.Sprintf("Segment %s (%.1f m): average density %.4f vehicles/m over %d ticks.", seg, length, avg, n),
			seg, avg,
		)
	}
	return sec
}

func congestedSegmentsSection(snap *stats.Snapshot, f Filter) Section {
	sec := Section{
		Kind:      CongestedSegments,
		Header:    []string{"segment_id", "current_stopped", "max_stopped", "congested_now"},
		ValueName: "Max stopped vehicles",
	}
	for _, seg := range snap.CongestedSegments() {
		if !f.matchSegment(seg) {
			continue
		}
		peak := snap.HistoricalCongestion[seg]
		if f.CongestedOnly && peak < snap.MinStoppedVehicles {
			continue
		}
		cur, now := snap.CurrentCongestion[seg]
		state := "no"
		desc := "clear now"
		if now {
			state = "yes"
			desc = fmt.Sprintf("congested now with %d stopped", cur)
		}
		sec.add(
			[]string{seg, strconv.Itoa(cur), strconv.Itoa(peak), state},
			fmt.Sprintf("Segment %s: peak of %d stopped vehicles, %s.", seg, peak, desc),
			seg, float64(peak),
		)
	}
	return sec
}

func vehicleTravelTimesSection(snap *stats.Snapshot, f Filter) Section {
	sec := Section{
		Kind:      VehicleTravelTimes,
		Header:    []string{"vehicle_id", "color", "route_id", "entry_time_s", "exit_time_s", "travel_time_s"},
		ValueName: "Travel time (s)",
	}
	for _, v := range snap.CompletedVehicles() {
		if !f.matchColor(v.Color) || !f.matchRoute(v.RouteID) {
			continue
		}
		tt := v.TravelTime()
		sec.add(
			[]string{v.ID, v.Color, v.RouteID, ff(v.EntryTime, 2), ff(v.ExitTime, 2), ff(tt, 2)},
			fmt.Sprintf("Vehicle %s (%s, route %s): entered at %.2f s, exited at %.2f s, travel time %.2f s.",
				v.ID, orDash(v.Color), orDash(v.RouteID), v.EntryTime, v.ExitTime, tt),
			v.ID, tt,
		)
	}
	return sec
}

func summarySection(snap *stats.Snapshot, unit string) Section {
	sec := Section{
		Kind:   Summary,
		Header: []string{"metric", "value"},
		Trend:  append([]float64(nil), snap.SpeedHistory...),
	}
	for i := range sec.Trend {
		sec.Trend[i] = units.ConvertSpeed(sec.Trend[i], unit)
	}
	sec.ValueName = "Average speed (" + units.Label(unit) + ")"

	speed := units.ConvertSpeed(snap.CurrentAverageSpeed(), unit)
	completed := len(snap.CompletedVehicles())

	sec.add([]string{"run_id", snap.RunID}, "Run: "+snap.RunID, "", 0)
	sec.add([]string{"ticks", strconv.Itoa(snap.Tick)},
		fmt.Sprintf("Ticks processed: %d", snap.Tick), "ticks", float64(snap.Tick))
	sec.add([]string{"simulation_time_s", ff(snap.Time, 2)},
		fmt.Sprintf("Simulation time: %.2f s", snap.Time), "", 0)
	sec.add([]string{"vehicles_observed", strconv.Itoa(len(snap.Vehicles))},
		fmt.Sprintf("Vehicles observed: %d", len(snap.Vehicles)), "vehicles", float64(len(snap.Vehicles)))
	sec.add([]string{"vehicles_completed", strconv.Itoa(completed)},
		fmt.Sprintf("Vehicles completed: %d", completed), "completed", float64(completed))
	sec.add([]string{"segments_known", strconv.Itoa(len(snap.KnownSegments))},
		fmt.Sprintf("Segments known: %d", len(snap.KnownSegments)), "segments", float64(len(snap.KnownSegments)))
	if snap.ControlPointsKnown {
		sec.add([]string{"control_points", strconv.Itoa(snap.ControlPoints)},
			fmt.Sprintf("Traffic control points: %d", snap.ControlPoints), "control points", float64(snap.ControlPoints))
	}
	sec.add([]string{"current_average_speed_" + unit, ff(speed, 2)},
		fmt.Sprintf("Current average speed: %.2f %s", speed, units.Label(unit)), "", 0)
	sec.add([]string{"tick_warnings", strconv.Itoa(snap.WarningCount)},
		fmt.Sprintf("Tick warnings: %d", snap.WarningCount), "", 0)
	return sec
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ">")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
