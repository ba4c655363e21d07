// Package api serves live engine statistics and on-demand reports over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/traffic.report/internal/monitoring"
	"github.com/banshee-data/traffic.report/internal/report"
	"github.com/banshee-data/traffic.report/internal/stats"
)

var log = monitoring.Component("http")

// ANSI escape codes for access log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Engine is the read side of a running statistics engine.
type Engine interface {
	report.SnapshotSource
	LastTick() stats.TickReport
}

// Server exposes an engine over HTTP.
type Server struct {
	engine   Engine
	exporter *report.Exporter
	units    string
}

// NewServer creates a server reading from engine and rendering reports
// with exporter.
func NewServer(engine Engine, exporter *report.Exporter) *Server {
	return &Server{
		engine:   engine,
		exporter: exporter,
		units:    exporter.Units(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns a mux with the API routes registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/speed_history", s.showSpeedHistory)
	mux.HandleFunc("/api/report", s.renderReport)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// AttachAdminRoutes publishes live engine counters on the tsweb debug page.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Ticks", func() any { return s.engine.LastTick().Tick })
	debug.KVFunc("Simulation time (s)", func() any { return s.engine.LastTick().Time })
	debug.KVFunc("Run", func() any { return s.engine.Snapshot().RunID })
	debug.KVFunc("Tick warnings", func() any { return s.engine.Snapshot().WarningCount })
	debug.HandleFunc("stats", "Current engine statistics (JSON)", s.showStats)
}
