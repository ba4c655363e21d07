// Package report renders engine snapshots into filtered, multi-section
// reports: CSV tables, narrative text, PNG charts, HTML chart pages and
// SQLite archives.
package report

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind is returned when a report kind name is not recognised.
	ErrUnknownKind = errors.New("unknown report kind")
	// ErrNoKinds is returned when an export requests no report kinds.
	ErrNoKinds = errors.New("no report kinds requested")
	// ErrUnknownFormat is returned when an output format is not recognised.
	ErrUnknownFormat = errors.New("unknown report format")
	// ErrNotStreamable is returned by Render for formats that need a file path.
	ErrNotStreamable = errors.New("format cannot be streamed")
)

// Kind identifies one report section.
type Kind string

const (
	AverageSpeed       Kind = "AverageSpeed"
	AverageTravelTime  Kind = "AverageTravelTime"
	EdgeDensity        Kind = "EdgeDensity"
	CongestedSegments  Kind = "CongestedSegments"
	VehicleTravelTimes Kind = "VehicleTravelTimes"
	Summary            Kind = "Summary"
)

// AllKinds lists every report kind in canonical order.
var AllKinds = []Kind{AverageSpeed, AverageTravelTime, EdgeDensity, CongestedSegments, VehicleTravelTimes, Summary}

// Title is the section heading used by the narrative, chart and html formats.
func (k Kind) Title() string {
	switch k {
	case AverageSpeed:
		return "Average speed by segment"
	case AverageTravelTime:
		return "Average travel time by route"
	case EdgeDensity:
		return "Edge density"
	case CongestedSegments:
		return "Congested segments"
	case VehicleTravelTimes:
		return "Vehicle travel times"
	case Summary:
		return "Summary"
	}
	return string(k)
}

// Description is the fixed explanatory paragraph printed under each
// narrative section heading.
func (k Kind) Description() string {
	switch k {
	case AverageSpeed:
		return "Mean speed of moving vehicles observed on each segment, across all ticks."
	case AverageTravelTime:
		return "Mean and 85th percentile time from network entry to exit for vehicles that completed each route."
	case EdgeDensity:
		return "Mean vehicles per metre on each segment, averaged over every tick."
	case CongestedSegments:
		return "Segments where the number of stopped vehicles reached the congestion threshold at least once."
	case VehicleTravelTimes:
		return "Entry, exit and travel time of every vehicle that completed its trip."
	case Summary:
		return "Totals for the whole run. Filters do not apply to this section."
	}
	return ""
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// ParseKind resolves a kind name case-insensitively, ignoring '_' and '-'
// so that "average_speed" and "AverageSpeed" are equivalent.
func ParseKind(s string) (Kind, error) {
	n := normalizeName(s)
	for _, k := range AllKinds {
		if normalizeName(string(k)) == n {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ParseKinds parses a comma-separated kind list. "all" selects every kind.
func ParseKinds(s string) ([]Kind, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrNoKinds
	}
	var kinds []Kind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if normalizeName(part) == "all" {
			kinds = append(kinds, AllKinds...)
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return nil, ErrNoKinds
	}
	return dedupeKinds(kinds), nil
}

// dedupeKinds drops repeated kinds, keeping the first occurrence.
func dedupeKinds(kinds []Kind) []Kind {
	seen := make(map[Kind]bool, len(kinds))
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Format is a report output format.
type Format string

const (
	Tabular   Format = "tabular"
	Narrative Format = "narrative"
	Chart     Format = "chart"
	HTML      Format = "html"
	SQLite    Format = "sqlite"
)

// Formats lists every supported format.
var Formats = []Format{Tabular, Narrative, Chart, HTML, SQLite}

// ParseFormat resolves a format name. "csv" and "text" are accepted as
// aliases for tabular and narrative.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tabular", "csv":
		return Tabular, nil
	case "narrative", "text", "txt":
		return Narrative, nil
	case "chart", "png":
		return Chart, nil
	case "html":
		return HTML, nil
	case "sqlite", "db":
		return SQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension is the conventional file extension for the format.
func (f Format) Extension() string {
	switch f {
	case Tabular:
		return ".csv"
	case Narrative:
		return ".txt"
	case Chart:
		return ".png"
	case HTML:
		return ".html"
	case SQLite:
		return ".sqlite"
	}
	return ""
}

// ContentType is the HTTP media type of a rendered report.
func (f Format) ContentType() string {
	switch f {
	case Tabular:
		return "text/csv; charset=utf-8"
	case Narrative:
		return "text/plain; charset=utf-8"
	case Chart:
		return "image/png"
	case HTML:
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}
