// Package sim is a small deterministic road network used to drive the
// statistics engine from the CLI and in integration tests. Vehicles travel
// fixed routes at the speed limit and queue at fixed-cycle signals.
package sim

import (
	"fmt"
	"sync"

	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/stats"
)

// Route is a named sequence of segment ids.
type Route struct {
	ID       string
	Segments []string
}

// Options describes the network layout and its fixed behaviour.
type Options struct {
	Segments    []stats.Segment
	Routes      []Route
	SpawnEvery  int     // ticks between spawns
	SignalCycle int     // ticks per full green+red cycle; 0 disables signals
	SpeedLimit  float64 // m/s
	TickSeconds float64 // simulated seconds per step
	Colors      []string
}

// OptionsFromConfig builds network options from the engine config.
func OptionsFromConfig(cfg *config.EngineConfig) Options {
	opts := Options{
		SpawnEvery:  cfg.GetSpawnEveryTicks(),
		SignalCycle: cfg.GetSignalCycleTicks(),
		SpeedLimit:  cfg.GetSpeedLimit(),
		TickSeconds: cfg.GetTickSeconds(),
		Colors:      cfg.GetColors(),
	}
	for _, s := range cfg.GetSegments() {
		opts.Segments = append(opts.Segments, stats.Segment{ID: s.ID, Length: s.Length})
	}
	for _, r := range cfg.GetRoutes() {
		opts.Routes = append(opts.Routes, Route{ID: r.ID, Segments: append([]string(nil), r.Segments...)})
	}
	return opts
}

type vehicle struct {
	id    string
	route *Route
	color string
	leg   int     // index into route.Segments
	pos   float64 // metres along the current segment
	speed float64
}

func (v *vehicle) segment() string { return v.route.Segments[v.leg] }

// signal sits at the downstream end of a segment.
type signal struct {
	segment string
	red     bool
}

// Network is a stats.Source over a fixed set of segments and routes.
type Network struct {
	mu sync.Mutex

	opts     Options
	lengths  map[string]float64
	signals  map[string]*signal
	vehicles []*vehicle

	step      int
	time      float64
	spawned   int
	exited    int
	nextRoute int
}

// NewNetwork validates opts and returns an empty network at time 0.
func NewNetwork(opts Options) (*Network, error) {
	if len(opts.Segments) == 0 {
		return nil, fmt.Errorf("network needs at least one segment")
	}
	if len(opts.Routes) == 0 {
		return nil, fmt.Errorf("network needs at least one route")
	}
	if opts.SpawnEvery < 1 {
		opts.SpawnEvery = 1
	}
	if opts.TickSeconds <= 0 {
		opts.TickSeconds = 1
	}
	if len(opts.Colors) == 0 {
		opts.Colors = []string{"White"}
	}
	opts.Segments = append([]stats.Segment(nil), opts.Segments...)
	opts.Routes = append([]Route(nil), opts.Routes...)

	n := &Network{
		opts:    opts,
		lengths: make(map[string]float64, len(opts.Segments)),
		signals: make(map[string]*signal),
	}
	for _, s := range opts.Segments {
		if s.ID == "" {
			return nil, fmt.Errorf("segment with empty id")
		}
		if _, dup := n.lengths[s.ID]; dup {
			return nil, fmt.Errorf("duplicate segment %q", s.ID)
		}
		n.lengths[s.ID] = s.Length
	}
	for i := range opts.Routes {
		r := &n.opts.Routes[i]
		if len(r.Segments) == 0 {
			return nil, fmt.Errorf("route %q has no segments", r.ID)
		}
		for _, seg := range r.Segments {
			if _, ok := n.lengths[seg]; !ok {
				return nil, fmt.Errorf("route %q references unknown segment %q", r.ID, seg)
			}
		}
		if opts.SignalCycle > 0 && len(r.Segments) > 1 {
			first := r.Segments[0]
			n.signals[first] = &signal{segment: first}
		}
	}
	return n, nil
}

// Step advances the network by one tick: signals switch phase, vehicles
// move and leave at their route's end, and a new vehicle may spawn.
func (n *Network) Step() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.step++
	n.time = float64(n.step) * n.opts.TickSeconds

	if c := n.opts.SignalCycle; c > 0 {
		red := (n.step-1)%c >= (c+1)/2
		for _, s := range n.signals {
			s.red = red
		}
	}

	dist := n.opts.SpeedLimit * n.opts.TickSeconds
	kept := n.vehicles[:0]
	for _, v := range n.vehicles {
		if n.advance(v, dist) {
			n.exited++
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(n.vehicles); i++ {
		n.vehicles[i] = nil
	}
	n.vehicles = kept

	if (n.step-1)%n.opts.SpawnEvery == 0 {
		n.spawn()
	}
}

// advance moves v by dist metres and reports whether it left the network.
func (n *Network) advance(v *vehicle, dist float64) bool {
	v.speed = n.opts.SpeedLimit
	v.pos += dist
	for {
		length := n.lengths[v.segment()]
		if v.pos < length {
			return false
		}
		if s, ok := n.signals[v.segment()]; ok && s.red {
			v.pos = length
			v.speed = 0
			return false
		}
		if v.leg == len(v.route.Segments)-1 {
			return true
		}
		v.pos -= length
		v.leg++
	}
}

func (n *Network) spawn() {
	r := &n.opts.Routes[n.nextRoute%len(n.opts.Routes)]
	n.nextRoute++
	n.spawned++
	n.vehicles = append(n.vehicles, &vehicle{
		id:    fmt.Sprintf("veh-%d", n.spawned),
		route: r,
		color: n.opts.Colors[(n.spawned-1)%len(n.opts.Colors)],
		speed: n.opts.SpeedLimit,
	})
}

// Stats returns the step count and how many vehicles have spawned and exited.
func (n *Network) Stats() (steps, spawned, exited int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.step, n.spawned, n.exited
}

// CurrentTime returns the simulated time in seconds.
func (n *Network) CurrentTime() (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.time, nil
}

// ActiveEntities returns a snapshot of every vehicle in the network.
func (n *Network) ActiveEntities() ([]stats.EntitySnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]stats.EntitySnapshot, 0, len(n.vehicles))
	for _, v := range n.vehicles {
		out = append(out, stats.EntitySnapshot{
			ID:        v.id,
			Speed:     v.speed,
			SegmentID: v.segment(),
			Color:     v.color,
			RouteID:   v.route.ID,
			Type:      "car",
		})
	}
	return out, nil
}

// Segments returns the network's segments in configuration order.
func (n *Network) Segments() ([]stats.Segment, error) {
	return append([]stats.Segment(nil), n.opts.Segments...), nil
}

// SegmentVehicleCount returns the number of vehicles on a segment.
func (n *Network) SegmentVehicleCount(segmentID string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.lengths[segmentID]; !ok {
		return 0, fmt.Errorf("unknown segment %q", segmentID)
	}
	count := 0
	for _, v := range n.vehicles {
		if v.segment() == segmentID {
			count++
		}
	}
	return count, nil
}

// SegmentLength returns a segment's length in metres.
func (n *Network) SegmentLength(segmentID string) (float64, error) {
	length, ok := n.lengths[segmentID]
	if !ok {
		return 0, fmt.Errorf("unknown segment %q", segmentID)
	}
	return length, nil
}

// ControlPointCount returns the number of signals.
func (n *Network) ControlPointCount() (int, error) {
	return len(n.signals), nil
}
