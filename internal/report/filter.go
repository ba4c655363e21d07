package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Filter holds the optional inclusion predicates applied at export time.
// Empty strings and nil thresholds impose no constraint. A filter naming an
// id that does not exist matches nothing.
type Filter struct {
	Color         string
	RouteID       string
	SegmentID     string
	MinTravelTime *float64
	MinDensity    *float64
	CongestedOnly bool
}

// Float returns a pointer to v, for populating threshold fields.
func Float(v float64) *float64 {
	return &v
}

// ParseThreshold parses a filter threshold. An empty string yields nil (no
// constraint); NaN and infinities are rejected since no value compares
// meaningfully against them.
func ParseThreshold(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("threshold must be finite, got %q", s)
	}
	return &v, nil
}

// IsEmpty reports whether the filter imposes no constraint.
func (f Filter) IsEmpty() bool {
	return f.Color == "" && f.RouteID == "" && f.SegmentID == "" &&
		f.MinTravelTime == nil && f.MinDensity == nil && !f.CongestedOnly
}

func (f Filter) matchColor(c string) bool    { return f.Color == "" || f.Color == c }
func (f Filter) matchRoute(id string) bool   { return f.RouteID == "" || f.RouteID == id }
func (f Filter) matchSegment(id string) bool { return f.SegmentID == "" || f.SegmentID == id }

func (f Filter) meetsTravelTime(v float64) bool {
	return f.MinTravelTime == nil || v >= *f.MinTravelTime
}

func (f Filter) meetsDensity(v float64) bool {
	return f.MinDensity == nil || v >= *f.MinDensity
}

// String renders the active constraints for report headers, or "none".
func (f Filter) String() string {
	var parts []string
	if f.Color != "" {
		parts = append(parts, "color="+f.Color)
	}
	if f.RouteID != "" {
		parts = append(parts, "route="+f.RouteID)
	}
	if f.SegmentID != "" {
		parts = append(parts, "segment="+f.SegmentID)
	}
	if f.MinTravelTime != nil {
		parts = append(parts, fmt.Sprintf("min_travel_time=%g", *f.MinTravelTime))
	}
	if f.MinDensity != nil {
		parts = append(parts, fmt.Sprintf("min_density=%g", *f.MinDensity))
	}
	if f.CongestedOnly {
		parts = append(parts, "congested_only")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
