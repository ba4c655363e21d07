package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()

	if cfg.MinStoppedVehicles == nil || *cfg.MinStoppedVehicles != 3 {
		t.Errorf("Expected MinStoppedVehicles 3, got %v", cfg.MinStoppedVehicles)
	}
	if cfg.StoppedSpeedThreshold == nil || *cfg.StoppedSpeedThreshold != 0.5 {
		t.Errorf("Expected StoppedSpeedThreshold 0.5, got %v", cfg.StoppedSpeedThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.GetTickInterval() != 100*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 100ms", cfg.GetTickInterval())
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyEngineConfig()

	if got := cfg.GetMinStoppedVehicles(); got != 3 {
		t.Errorf("GetMinStoppedVehicles() = %d, want 3", got)
	}
	if got := cfg.GetStoppedSpeedThreshold(); got != 0.5 {
		t.Errorf("GetStoppedSpeedThreshold() = %f, want 0.5", got)
	}
	if got := cfg.GetSpeedUnits(); got != "mps" {
		t.Errorf("GetSpeedUnits() = %q, want mps", got)
	}
	if got := cfg.GetSpawnEveryTicks(); got != 1 {
		t.Errorf("GetSpawnEveryTicks() = %d, want 1", got)
	}
	if got := cfg.GetSignalCycleTicks(); got != 20 {
		t.Errorf("GetSignalCycleTicks() = %d, want 20", got)
	}
	if got := cfg.GetSpeedLimit(); got != 13.9 {
		t.Errorf("GetSpeedLimit() = %f, want 13.9", got)
	}
	if got := cfg.GetTickSeconds(); got != 1.0 {
		t.Errorf("GetTickSeconds() = %f, want 1.0", got)
	}
	if got := len(cfg.GetColors()); got != 4 {
		t.Errorf("GetColors() returned %d colors, want 4", got)
	}

	want := map[string][]string{
		"A-B-D": {"E1", "E2"},
		"A-C-D": {"E3", "E4"},
	}
	if diff := cmp.Diff(want, cfg.RouteTable()); diff != "" {
		t.Errorf("RouteTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	builtin := DefaultEngineConfig()

	if diff := cmp.Diff(builtin, fromFile); diff != "" {
		t.Errorf("engine.defaults.json drifted from DefaultEngineConfig (-builtin +file):\n%s", diff)
	}
}

func TestLoadEngineConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "engine.json")

	testJSON := `{
  "min_stopped_vehicles": 5,
  "speed_units": "kph",
  "segments": [{"id": "S1", "length": 100}],
  "routes": [{"id": "R1", "segments": ["S1"]}],
  "tick_interval": "250ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadEngineConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetMinStoppedVehicles(); got != 5 {
		t.Errorf("GetMinStoppedVehicles() = %d, want 5", got)
	}
	if got := cfg.GetSpeedUnits(); got != "kph" {
		t.Errorf("GetSpeedUnits() = %q, want kph", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetStoppedSpeedThreshold(); got != 0.5 {
		t.Errorf("GetStoppedSpeedThreshold() = %f, want 0.5", got)
	}
	if got := cfg.GetTickInterval(); got != 250*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 250ms", got)
	}
	if diff := cmp.Diff(map[string][]string{"R1": {"S1"}}, cfg.RouteTable()); diff != "" {
		t.Errorf("RouteTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEngineConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("engine.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"bad units", write("units.json", `{"speed_units": "furlongs"}`), "speed_units"},
		{"zero threshold count", write("min.json", `{"min_stopped_vehicles": 0}`), "min_stopped_vehicles"},
		{"negative speed threshold", write("thr.json", `{"stopped_speed_threshold": -1}`), "stopped_speed_threshold"},
		{"bad interval", write("interval.json", `{"tick_interval": "soon"}`), "tick_interval"},
		{"unknown route segment", write("route.json", `{"segments":[{"id":"S1","length":1}],"routes":[{"id":"R","segments":["S9"]}]}`), "unknown segment"},
		{"duplicate route", write("dup.json", `{"routes":[{"id":"R","segments":["E1"]},{"id":"R","segments":["E2"]}]}`), "duplicate route"},
		{"empty route", write("empty.json", `{"routes":[{"id":"R","segments":[]}]}`), "no segments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEngineConfig(tt.path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetTickInterval_InvalidFallsBack(t *testing.T) {
	cfg := &EngineConfig{TickInterval: ptrString("nonsense")}
	if got := cfg.GetTickInterval(); got != 100*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want default 100ms", got)
	}
}

func TestGetRoutesReturnsCopy(t *testing.T) {
	cfg := DefaultEngineConfig()
	routes := cfg.GetRoutes()
	routes[0].Segments[0] = "mutated"

	if cfg.Routes[0].Segments[0] != "E1" {
		t.Error("GetRoutes leaked internal slice")
	}
}
