package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/traffic.report/internal/units"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

// SegmentConfig describes one road segment of the demo network.
type SegmentConfig struct {
	ID     string  `json:"id"`
	Length float64 `json:"length"`
}

// RouteConfig is a named, ordered list of segment ids.
type RouteConfig struct {
	ID       string   `json:"id"`
	Segments []string `json:"segments"`
}

// EngineConfig represents the root configuration for the statistics engine
// and the demo network that drives it. Pointer fields left nil fall back to
// the defaults returned by the Get* accessors, so partial configs are safe.
type EngineConfig struct {
	// Congestion detection
	MinStoppedVehicles    *int     `json:"min_stopped_vehicles,omitempty"`
	StoppedSpeedThreshold *float64 `json:"stopped_speed_threshold,omitempty"`

	// Report rendering
	SpeedUnits *string `json:"speed_units,omitempty"`

	// Network definition. Routes seed the static route table.
	Segments []SegmentConfig `json:"segments,omitempty"`
	Routes   []RouteConfig   `json:"routes,omitempty"`

	// Demo network behaviour
	SpawnEveryTicks  *int     `json:"spawn_every_ticks,omitempty"`
	SignalCycleTicks *int     `json:"signal_cycle_ticks,omitempty"`
	SpeedLimit       *float64 `json:"speed_limit,omitempty"`
	TickSeconds      *float64 `json:"tick_seconds,omitempty"`
	TickInterval     *string  `json:"tick_interval,omitempty"` // duration string like "100ms"
	Colors           []string `json:"colors,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEngineConfig returns an EngineConfig with all fields unset.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// DefaultEngineConfig returns a config with every field populated from the
// built-in defaults. It matches config/engine.defaults.json.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MinStoppedVehicles:    ptrInt(3),
		StoppedSpeedThreshold: ptrFloat64(0.5),
		SpeedUnits:            ptrString(units.MPS),
		Segments:              defaultSegments(),
		Routes:                defaultRoutes(),
		SpawnEveryTicks:       ptrInt(1),
		SignalCycleTicks:      ptrInt(20),
		SpeedLimit:            ptrFloat64(13.9),
		TickSeconds:           ptrFloat64(1.0),
		TickInterval:          ptrString("100ms"),
		Colors:                defaultColors(),
	}
}

func defaultSegments() []SegmentConfig {
	return []SegmentConfig{
		{ID: "E1", Length: 100},
		{ID: "E2", Length: 100},
		{ID: "E3", Length: 150},
		{ID: "E4", Length: 50},
	}
}

func defaultRoutes() []RouteConfig {
	return []RouteConfig{
		{ID: "A-B-D", Segments: []string{"E1", "E2"}},
		{ID: "A-C-D", Segments: []string{"E3", "E4"}},
	}
}

func defaultColors() []string {
	return []string{"Red", "Blue", "Green", "Yellow"}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *EngineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadEngineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *EngineConfig) Validate() error {
	if c.MinStoppedVehicles != nil && *c.MinStoppedVehicles < 1 {
		return fmt.Errorf("min_stopped_vehicles must be at least 1, got %d", *c.MinStoppedVehicles)
	}
	if c.StoppedSpeedThreshold != nil && *c.StoppedSpeedThreshold < 0 {
		return fmt.Errorf("stopped_speed_threshold must be non-negative, got %f", *c.StoppedSpeedThreshold)
	}
	if c.SpeedUnits != nil && !units.IsValid(*c.SpeedUnits) {
		return fmt.Errorf("speed_units must be one of %s, got %q", units.GetValidUnitsString(), *c.SpeedUnits)
	}
	if c.SpawnEveryTicks != nil && *c.SpawnEveryTicks < 1 {
		return fmt.Errorf("spawn_every_ticks must be at least 1, got %d", *c.SpawnEveryTicks)
	}
	if c.SignalCycleTicks != nil && *c.SignalCycleTicks < 2 {
		return fmt.Errorf("signal_cycle_ticks must be at least 2, got %d", *c.SignalCycleTicks)
	}
	if c.SpeedLimit != nil && *c.SpeedLimit <= 0 {
		return fmt.Errorf("speed_limit must be positive, got %f", *c.SpeedLimit)
	}
	if c.TickSeconds != nil && *c.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive, got %f", *c.TickSeconds)
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		if _, err := time.ParseDuration(*c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
	}

	known := make(map[string]bool, len(c.Segments))
	for _, s := range c.Segments {
		if s.ID == "" {
			return fmt.Errorf("segment with empty id")
		}
		if known[s.ID] {
			return fmt.Errorf("duplicate segment id %q", s.ID)
		}
		known[s.ID] = true
	}

	routeIDs := make(map[string]bool, len(c.Routes))
	for _, r := range c.Routes {
		if r.ID == "" {
			return fmt.Errorf("route with empty id")
		}
		if routeIDs[r.ID] {
			return fmt.Errorf("duplicate route id %q", r.ID)
		}
		routeIDs[r.ID] = true
		if len(r.Segments) == 0 {
			return fmt.Errorf("route %q has no segments", r.ID)
		}
		// Segment references are only checked when the config defines its own network.
		if len(c.Segments) > 0 {
			for _, sid := range r.Segments {
				if !known[sid] {
					return fmt.Errorf("route %q references unknown segment %q", r.ID, sid)
				}
			}
		}
	}

	return nil
}

// GetMinStoppedVehicles returns the congestion threshold or the default.
func (c *EngineConfig) GetMinStoppedVehicles() int {
	if c.MinStoppedVehicles == nil {
		return 3
	}
	return *c.MinStoppedVehicles
}

// GetStoppedSpeedThreshold returns the stopped speed threshold or the default.
func (c *EngineConfig) GetStoppedSpeedThreshold() float64 {
	if c.StoppedSpeedThreshold == nil {
		return 0.5
	}
	return *c.StoppedSpeedThreshold
}

// GetSpeedUnits returns the report speed unit or the default.
func (c *EngineConfig) GetSpeedUnits() string {
	if c.SpeedUnits == nil || *c.SpeedUnits == "" {
		return units.MPS
	}
	return *c.SpeedUnits
}

// GetSegments returns the configured segments or the default network.
func (c *EngineConfig) GetSegments() []SegmentConfig {
	if len(c.Segments) == 0 {
		return defaultSegments()
	}
	out := make([]SegmentConfig, len(c.Segments))
	copy(out, c.Segments)
	return out
}

// GetRoutes returns the configured routes or the default routes.
func (c *EngineConfig) GetRoutes() []RouteConfig {
	if len(c.Routes) == 0 {
		return defaultRoutes()
	}
	out := make([]RouteConfig, len(c.Routes))
	for i, r := range c.Routes {
		out[i] = RouteConfig{ID: r.ID, Segments: append([]string(nil), r.Segments...)}
	}
	return out
}

// RouteTable returns the routes as a route id -> segment ids map.
func (c *EngineConfig) RouteTable() map[string][]string {
	table := make(map[string][]string)
	for _, r := range c.GetRoutes() {
		table[r.ID] = r.Segments
	}
	return table
}

// GetSpawnEveryTicks returns the spawn period or the default.
func (c *EngineConfig) GetSpawnEveryTicks() int {
	if c.SpawnEveryTicks == nil {
		return 1
	}
	return *c.SpawnEveryTicks
}

// GetSignalCycleTicks returns the full red+green signal cycle length or the default.
func (c *EngineConfig) GetSignalCycleTicks() int {
	if c.SignalCycleTicks == nil {
		return 20
	}
	return *c.SignalCycleTicks
}

// GetSpeedLimit returns the free-flow speed in m/s or the default.
func (c *EngineConfig) GetSpeedLimit() float64 {
	if c.SpeedLimit == nil {
		return 13.9
	}
	return *c.SpeedLimit
}

// GetTickSeconds returns the simulated seconds per tick or the default.
func (c *EngineConfig) GetTickSeconds() float64 {
	if c.TickSeconds == nil {
		return 1.0
	}
	return *c.TickSeconds
}

// GetTickInterval parses and returns the wall-clock pacing between ticks.
func (c *EngineConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetColors returns the vehicle color palette or the default.
func (c *EngineConfig) GetColors() []string {
	if len(c.Colors) == 0 {
		return defaultColors()
	}
	return append([]string(nil), c.Colors...)
}
