package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/traffic.report/internal/monitoring"
)

var log = monitoring.Component("stats")

// Config holds the engine's tunables and the static route table.
type Config struct {
	MinStoppedVehicles    int
	StoppedSpeedThreshold float64
	Routes                map[string][]string
}

// DefaultConfig returns the default thresholds with an empty route table.
func DefaultConfig() Config {
	return Config{
		MinStoppedVehicles:    DefaultMinStoppedVehicles,
		StoppedSpeedThreshold: DefaultStoppedSpeedThreshold,
		Routes:                map[string][]string{},
	}
}

// TickError describes one failed sub-step of a tick. The tick carries on
// without the affected entity or segment.
type TickError struct {
	Step string // "entities", "time", "segments", "segment", "entity", "control_points"
	ID   string
	Err  error
}

func (e *TickError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q: %v", e.Step, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

// TickReport is the outcome of one CollectTick call.
type TickReport struct {
	Tick     int
	Time     float64
	Entities int // entities accepted this tick
	Segments int // segments sampled this tick
	Warnings []error
}

// Engine owns all aggregate state. CollectTick must be called from a single
// goroutine; every other method is safe for concurrent use and returns copies.
type Engine struct {
	source Source
	runID  string

	mu                 sync.Mutex
	tick               int
	simTime            float64
	knownSegments      map[string]struct{}
	controlPoints      int
	controlPointsKnown bool
	warningCount       int
	last               TickReport

	lifecycle  *LifecycleTracker
	speed      *SpeedAggregator
	density    *DensityTracker
	congestion *CongestionDetector
	routes     *RouteTravelTimes
}

// NewEngine creates an engine reading from src.
func NewEngine(src Source, cfg Config) *Engine {
	return &Engine{
		source:        src,
		runID:         uuid.NewString(),
		knownSegments: make(map[string]struct{}),
		lifecycle:     NewLifecycleTracker(),
		speed:         NewSpeedAggregator(),
		density:       NewDensityTracker(),
		congestion:    NewCongestionDetector(cfg.MinStoppedVehicles, cfg.StoppedSpeedThreshold),
		routes:        NewRouteTravelTimes(cfg.Routes),
	}
}

// RunID identifies this engine instance in reports and archives.
func (e *Engine) RunID() string { return e.runID }

// tickInput is everything fetched from the source for one tick.
type tickInput struct {
	entities   []EntitySnapshot // valid entries, fed to speed and congestion
	present    []EntitySnapshot // every distinct non-empty id, fed to lifecycle
	entitiesOK bool
	time       float64
	timeOK     bool
	segments   []string
	counts     map[string]int
	lengths    map[string]float64
	listed     []string
	control    int
	controlOK  bool
	warnings   []error
}

func (in *tickInput) warn(step, id string, err error) {
	in.warnings = append(in.warnings, &TickError{Step: step, ID: id, Err: err})
}

// gather queries the source without holding the engine lock so slow
// simulations never stall readers.
func (e *Engine) gather() *tickInput {
	in := &tickInput{
		counts:  make(map[string]int),
		lengths: make(map[string]float64),
	}

	if t, err := e.source.CurrentTime(); err != nil {
		in.warn("time", "", err)
	} else {
		in.time, in.timeOK = t, true
	}

	if active, err := e.source.ActiveEntities(); err != nil {
		in.warn("entities", "", err)
	} else {
		in.entitiesOK = true
		seen := make(map[string]struct{}, len(active))
		for _, ent := range active {
			if ent.ID == "" {
				in.warn("entity", "", fmt.Errorf("empty entity id"))
				continue
			}
			if _, dup := seen[ent.ID]; dup {
				in.warn("entity", ent.ID, fmt.Errorf("duplicate id in snapshot"))
				continue
			}
			seen[ent.ID] = struct{}{}
			// A bad reading still proves the vehicle is on the network.
			in.present = append(in.present, ent)
			if err := validateSpeed(ent.Speed); err != nil {
				in.warn("entity", ent.ID, err)
				continue
			}
			in.entities = append(in.entities, ent)
		}
	}

	if segs, err := e.source.Segments(); err != nil {
		in.warn("segments", "", err)
	} else {
		for _, s := range segs {
			if s.ID == "" {
				in.warn("segment", "", fmt.Errorf("empty segment id"))
				continue
			}
			in.listed = append(in.listed, s.ID)
			count, err := e.source.SegmentVehicleCount(s.ID)
			if err != nil {
				in.warn("segment", s.ID, fmt.Errorf("vehicle count: %w", err))
				continue
			}
			length, err := e.source.SegmentLength(s.ID)
			if err != nil {
				in.warn("segment", s.ID, fmt.Errorf("length: %w", err))
				continue
			}
			in.segments = append(in.segments, s.ID)
			in.counts[s.ID] = count
			in.lengths[s.ID] = length
		}
	}

	if n, err := e.source.ControlPointCount(); err != nil {
		in.warn("control_points", "", err)
	} else {
		in.control, in.controlOK = n, true
	}

	return in
}

func validateSpeed(speed float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("invalid speed %v", speed)
	}
	if speed < 0 {
		return fmt.Errorf("negative speed %v", speed)
	}
	return nil
}

// CollectTick advances the engine by one tick. Sub-steps run in a fixed
// order (lifecycle, speed, density, congestion, route times) under a single
// lock so readers never see a partially applied tick. Failures are reported
// in the returned TickReport and logged; they never abort the tick.
func (e *Engine) CollectTick() TickReport {
	in := e.gather()

	e.mu.Lock()
	e.tick++
	if in.timeOK {
		e.simTime = in.time
	}
	for _, id := range in.listed {
		e.knownSegments[id] = struct{}{}
	}

	if in.entitiesOK {
		e.lifecycle.Observe(e.tick, e.simTime, in.present)
	}
	// Without entity data the tick still gets a speed entry (0.0) so the
	// history stays one value per tick.
	e.speed.RecordTick(e.tick, in.entities)
	e.density.RecordTick(in.segments, in.counts, in.lengths)
	if in.entitiesOK {
		e.congestion.RecordTick(in.entities)
	} else {
		e.congestion.Reset()
	}
	e.routes.Recompute(e.lifecycle.Records())

	if in.controlOK {
		e.controlPoints = in.control
		e.controlPointsKnown = true
	}

	report := TickReport{
		Tick:     e.tick,
		Time:     e.simTime,
		Entities: len(in.entities),
		Segments: len(in.segments),
		Warnings: in.warnings,
	}
	e.warningCount += len(in.warnings)
	e.last = report
	e.mu.Unlock()

	for _, w := range in.warnings {
		log.Warnf("tick %d: %v", report.Tick, w)
	}
	return report
}

// TickCount returns the number of ticks processed.
func (e *Engine) TickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// SimTime returns the simulation time of the latest tick.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simTime
}

// LastTick returns the report of the most recent tick.
func (e *Engine) LastTick() TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.last
	r.Warnings = append([]error(nil), e.last.Warnings...)
	return r
}

// WarningCount returns the total warnings recorded across all ticks.
func (e *Engine) WarningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warningCount
}

// CurrentAverageSpeed returns the latest tick's average speed.
func (e *Engine) CurrentAverageSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed.CurrentAverage()
}

// SpeedHistory returns one average speed per tick, index 0 being tick 1.
func (e *Engine) SpeedHistory() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed.History()
}

// SpeedAt returns the average speed recorded at a 1-based tick.
func (e *Engine) SpeedAt(tick int) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed.At(tick)
}

// AverageDensity returns the mean density of a segment over its history.
func (e *Engine) AverageDensity(segmentID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.density.AverageDensity(segmentID)
}

// DensityHistory returns a copy of a segment's density samples.
func (e *Engine) DensityHistory(segmentID string) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.density.History(segmentID)
}

// CurrentCongestion returns segments congested in the latest tick.
func (e *Engine) CurrentCongestion() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.congestion.CurrentCongestion()
}

// HistoricalCongestion returns the maximum stopped count per ever-congested segment.
func (e *Engine) HistoricalCongestion() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.congestion.HistoricalCongestion()
}

// RecomputeTravelTimes re-derives route samples from the vehicle records.
// CollectTick already does this every tick; calling it again is harmless.
func (e *Engine) RecomputeTravelTimes() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes.Recompute(e.lifecycle.Records())
}

// AverageTravelTime returns the mean travel time of a route, 0 if unknown.
func (e *Engine) AverageTravelTime(routeID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routes.AverageForRoute(routeID)
}

// TravelTimePercentile returns the p-quantile (0..1) travel time of a route.
func (e *Engine) TravelTimePercentile(routeID string, p float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routes.Percentile(routeID, p)
}

// TravelTimeSamples returns a copy of a route's travel-time samples.
func (e *Engine) TravelTimeSamples(routeID string) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routes.Samples(routeID)
}

// Vehicle returns one vehicle's lifecycle record.
func (e *Engine) Vehicle(id string) (VehicleRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Get(id)
}

// Vehicles returns all vehicle records in observation order.
func (e *Engine) Vehicles() []VehicleRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Records()
}

// Snapshot copies all aggregate state for rendering outside the lock.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	known := make([]string, 0, len(e.knownSegments))
	for id := range e.knownSegments {
		known = append(known, id)
	}
	sort.Strings(known)

	return &Snapshot{
		RunID:                 e.runID,
		Tick:                  e.tick,
		Time:                  e.simTime,
		MinStoppedVehicles:    e.congestion.MinStoppedVehicles(),
		StoppedSpeedThreshold: e.congestion.StoppedSpeedThreshold(),
		SpeedHistory:          e.speed.History(),
		SegmentSpeeds:         e.speed.SegmentSamples(),
		DensityHistory:        e.density.Histories(),
		SegmentLengths:        e.density.Lengths(),
		KnownSegments:         known,
		CurrentCongestion:     e.congestion.CurrentCongestion(),
		HistoricalCongestion:  e.congestion.HistoricalCongestion(),
		Routes:                e.routes.Routes(),
		RouteSamples:          e.routes.AllSamples(),
		UnknownRouteVehicles:  e.routes.UnknownRouteVehicles(),
		Vehicles:              e.lifecycle.Records(),
		ControlPoints:         e.controlPoints,
		ControlPointsKnown:    e.controlPointsKnown,
		WarningCount:          e.warningCount,
	}
}
