package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/traffic.report/internal/httputil"
	"github.com/banshee-data/traffic.report/internal/report"
	"github.com/banshee-data/traffic.report/internal/security"
	"github.com/banshee-data/traffic.report/internal/units"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	RunID                string         `json:"run_id"`
	Tick                 int            `json:"tick"`
	SimTime              float64        `json:"sim_time"`
	Units                string         `json:"units"`
	CurrentAverageSpeed  float64        `json:"current_average_speed"`
	CurrentCongestion    map[string]int `json:"current_congestion"`
	HistoricalCongestion map[string]int `json:"historical_congestion"`
	VehiclesObserved     int            `json:"vehicles_observed"`
	VehiclesCompleted    int            `json:"vehicles_completed"`
	SegmentsKnown        int            `json:"segments_known"`
	ControlPoints        *int           `json:"control_points,omitempty"`
	WarningCount         int            `json:"warning_count"`
	LastTickWarnings     []string       `json:"last_tick_warnings"`
}

// SpeedHistoryResponse is the body of GET /api/speed_history.
type SpeedHistoryResponse struct {
	Units     string    `json:"units"`
	FirstTick int       `json:"first_tick"`
	Values    []float64 `json:"values"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}

	snap := s.engine.Snapshot()
	last := s.engine.LastTick()

	resp := StatsResponse{
		RunID:                snap.RunID,
		Tick:                 snap.Tick,
		SimTime:              snap.Time,
		Units:                s.units,
		CurrentAverageSpeed:  units.ConvertSpeed(snap.CurrentAverageSpeed(), s.units),
		CurrentCongestion:    snap.CurrentCongestion,
		HistoricalCongestion: snap.HistoricalCongestion,
		VehiclesObserved:     len(snap.Vehicles),
		VehiclesCompleted:    len(snap.CompletedVehicles()),
		SegmentsKnown:        len(snap.KnownSegments),
		WarningCount:         snap.WarningCount,
		LastTickWarnings:     make([]string, 0, len(last.Warnings)),
	}
	if snap.ControlPointsKnown {
		cp := snap.ControlPoints
		resp.ControlPoints = &cp
	}
	for _, warn := range last.Warnings {
		resp.LastTickWarnings = append(resp.LastTickWarnings, warn.Error())
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showSpeedHistory(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	history := s.engine.Snapshot().SpeedHistory
	first := 0
	if limit > 0 && len(history) > limit {
		first = len(history) - limit
	}
	values := make([]float64, 0, len(history)-first)
	for _, v := range history[first:] {
		values = append(values, units.ConvertSpeed(v, s.units))
	}
	httputil.WriteJSONOK(w, SpeedHistoryResponse{
		Units:     s.units,
		FirstTick: first + 1,
		Values:    values,
	})
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	q := r.URL.Query()

	format := report.Tabular
	if v := q.Get("format"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		format = f
	}
	if format == report.SQLite {
		httputil.BadRequest(w, "sqlite reports can only be exported to a file")
		return
	}

	kinds := report.AllKinds
	if v := q.Get("types"); v != "" {
		k, err := report.ParseKinds(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		kinds = k
	}

	filter, err := parseFilter(q)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	download := false
	if v := q.Get("download"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'download' parameter: %q", v))
			return
		}
		download = b
	}

	var buf bytes.Buffer
	if err := s.exporter.Render(&buf, filter, format, kinds); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render report: %v", err))
		return
	}
	if download {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", reportFilename(s.engine.Snapshot().RunID, kinds, format)))
	}
	httputil.WriteBody(w, format.ContentType(), buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}

	formats := make([]string, 0, len(report.Formats))
	for _, f := range report.Formats {
		formats = append(formats, string(f))
	}
	kinds := make([]string, 0, len(report.AllKinds))
	for _, k := range report.AllKinds {
		kinds = append(kinds, string(k))
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":        s.units,
		"formats":      formats,
		"report_kinds": kinds,
	})
}

// reportFilename names a downloaded report after its run and kinds.
func reportFilename(runID string, kinds []report.Kind, format report.Format) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	if len(kinds) == len(report.AllKinds) {
		names = []string{"all"}
	}
	base := security.SanitizeFilename("traffic-" + runID + "-" + strings.Join(names, "-"))
	return base + format.Extension()
}

// parseFilter reads report filter predicates from query parameters.
func parseFilter(q url.Values) (report.Filter, error) {
	f := report.Filter{
		Color:     q.Get("color"),
		RouteID:   q.Get("route"),
		SegmentID: q.Get("segment"),
	}
	var err error
	if f.MinTravelTime, err = report.ParseThreshold(q.Get("min_travel_time")); err != nil {
		return f, fmt.Errorf("invalid 'min_travel_time' parameter: %w", err)
	}
	if f.MinDensity, err = report.ParseThreshold(q.Get("min_density")); err != nil {
		return f, fmt.Errorf("invalid 'min_density' parameter: %w", err)
	}
	if v := q.Get("congested_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid 'congested_only' parameter: %q", v)
		}
		f.CongestedOnly = b
	}
	return f, nil
}
