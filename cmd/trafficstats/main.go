// Command trafficstats drives the demo road network, collects per-tick
// traffic statistics and exports reports. With -listen it also serves the
// live statistics API until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/traffic.report/internal/api"
	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/db"
	"github.com/banshee-data/traffic.report/internal/report"
	"github.com/banshee-data/traffic.report/internal/sim"
	"github.com/banshee-data/traffic.report/internal/stats"
	"github.com/banshee-data/traffic.report/internal/units"
	"github.com/banshee-data/traffic.report/internal/version"
)

type options struct {
	configPath string
	ticks      int
	interval   string
	export     string
	format     string
	types      string
	units      string
	listen     string
	archive    string
	version    bool
	filter     report.Filter
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("trafficstats", flag.ContinueOnError)
	o := &options{}
	var minTravel, minDensity string

	fs.StringVar(&o.configPath, "config", "", "Path to engine config JSON (defaults to built-in values)")
	fs.IntVar(&o.ticks, "ticks", 120, "Ticks to simulate; 0 runs until interrupted (requires -listen)")
	fs.StringVar(&o.interval, "interval", "", "Wall-clock time per tick, e.g. 100ms; 0 runs unpaced (default from config)")
	fs.StringVar(&o.export, "export", "", "Write a report to this path after the run ('-' for stdout)")
	fs.StringVar(&o.format, "format", "", "Report format: tabular, narrative, chart, html, sqlite (default from -export extension)")
	fs.StringVar(&o.types, "types", "all", "Comma-separated report kinds, or 'all'")
	fs.StringVar(&o.units, "units", "", "Speed units for reports: "+units.GetValidUnitsString()+" (default from config)")
	fs.StringVar(&o.listen, "listen", "", "Serve the statistics API on this address, e.g. :8080")
	fs.StringVar(&o.archive, "archive", "", "SQLite report archive to browse under /debug/tailsql/ when -listen is set")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	fs.StringVar(&o.filter.Color, "color", "", "Only include vehicles of this color")
	fs.StringVar(&o.filter.RouteID, "route", "", "Only include this route")
	fs.StringVar(&o.filter.SegmentID, "segment", "", "Only include this segment")
	fs.StringVar(&minTravel, "min-travel-time", "", "Only include routes whose average travel time is at least this many seconds")
	fs.StringVar(&minDensity, "min-density", "", "Only include segments whose average density is at least this value")
	fs.BoolVar(&o.filter.CongestedOnly, "congested-only", false, "Only include segments that have been congested")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if o.filter.MinTravelTime, err = optionalFloat("min-travel-time", minTravel); err != nil {
		return nil, err
	}
	if o.filter.MinDensity, err = optionalFloat("min-density", minDensity); err != nil {
		return nil, err
	}
	if o.ticks < 0 {
		return nil, fmt.Errorf("-ticks must be non-negative, got %d", o.ticks)
	}
	if o.ticks == 0 && o.listen == "" {
		return nil, errors.New("-ticks 0 runs until interrupted and requires -listen")
	}
	return o, nil
}

func optionalFloat(name, v string) (*float64, error) {
	x, err := report.ParseThreshold(v)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return x, nil
}

// formatFor picks the report format from the flag or the export path's
// extension.
func formatFor(flagValue, path string) (report.Format, error) {
	if flagValue != "" {
		return report.ParseFormat(flagValue)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return report.Narrative, nil
	case ".png":
		return report.Chart, nil
	case ".html", ".htm":
		return report.HTML, nil
	case ".sqlite", ".db":
		return report.SQLite, nil
	}
	return report.Tabular, nil
}

func loadConfig(path string) (*config.EngineConfig, error) {
	if path == "" {
		return config.DefaultEngineConfig(), nil
	}
	return config.LoadEngineConfig(path)
}

func run(ctx context.Context, o *options, stdout io.Writer) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	unit := cfg.GetSpeedUnits()
	if o.units != "" {
		unit = o.units
	}
	if !units.IsValid(unit) {
		return fmt.Errorf("invalid units %q, must be one of: %s", unit, units.GetValidUnitsString())
	}

	interval := cfg.GetTickInterval()
	if o.interval != "" {
		if interval, err = time.ParseDuration(o.interval); err != nil {
			return fmt.Errorf("invalid -interval %q: %w", o.interval, err)
		}
	}

	kinds, err := report.ParseKinds(o.types)
	if err != nil {
		return err
	}
	var format report.Format
	if o.export != "" {
		if format, err = formatFor(o.format, o.export); err != nil {
			return err
		}
		if o.export == "-" && format == report.SQLite {
			return errors.New("sqlite reports cannot be written to stdout")
		}
	}

	network, err := sim.NewNetwork(sim.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build network: %w", err)
	}
	engine := stats.NewEngine(network, stats.Config{
		MinStoppedVehicles:    cfg.GetMinStoppedVehicles(),
		StoppedSpeedThreshold: cfg.GetStoppedSpeedThreshold(),
		Routes:                cfg.RouteTable(),
	})
	exporter := report.NewExporter(engine, report.Options{Units: unit})
	log.Printf("%s run %s", version.String(), engine.RunID())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	var server *http.Server
	serveErr := make(chan error, 1)
	if o.listen != "" {
		mux := http.NewServeMux()
		apiServer := api.NewServer(engine, exporter)
		mux.Handle("/api/", apiServer.ServeMux())
		apiServer.AttachAdminRoutes(mux)

		if o.archive != "" {
			archive, err := db.Open(o.archive)
			if err != nil {
				return err
			}
			defer archive.Close()
			if err := archive.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}

		ln, err := net.Listen("tcp", o.listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", o.listen, err)
		}
		server = &http.Server{
			Addr:    o.listen,
			Handler: api.LoggingMiddleware(mux),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("serving statistics on %s", ln.Addr())
			if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
				serveErr <- err
				cancelRun()
			}
		}()
	}

	runner := &sim.Runner{
		Sim:       network,
		Collector: engine,
		Interval:  interval,
	}
	done, runErr := runner.Run(runCtx, o.ticks)
	select {
	case err := <-serveErr:
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Printf("simulated %d ticks", done)

	if o.export != "" {
		if o.export == "-" {
			if err := exporter.Render(stdout, o.filter, format, kinds); err != nil {
				return err
			}
		} else {
			if err := exporter.Export(o.export, o.filter, format, kinds); err != nil {
				return err
			}
			log.Printf("wrote %s report to %s", format, o.export)
		}
	}

	if server != nil {
		var failed error
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			failed = fmt.Errorf("HTTP server failed: %w", err)
		}
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		wg.Wait()
		return failed
	}
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("%v", err)
	}
	if o.version {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}
