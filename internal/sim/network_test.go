package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/stats"
)

func twoSegmentOptions() Options {
	return Options{
		Segments:    []stats.Segment{{ID: "A", Length: 20}, {ID: "B", Length: 20}},
		Routes:      []Route{{ID: "R", Segments: []string{"A", "B"}}},
		SpawnEvery:  100,
		SpeedLimit:  10,
		TickSeconds: 1,
		Colors:      []string{"Red", "Blue"},
	}
}

func TestNewNetwork_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no segments", func(o *Options) { o.Segments = nil }},
		{"no routes", func(o *Options) { o.Routes = nil }},
		{"empty segment id", func(o *Options) { o.Segments = append(o.Segments, stats.Segment{}) }},
		{"duplicate segment", func(o *Options) { o.Segments = append(o.Segments, stats.Segment{ID: "A"}) }},
		{"empty route", func(o *Options) { o.Routes = []Route{{ID: "R"}} }},
		{"unknown segment", func(o *Options) { o.Routes = []Route{{ID: "R", Segments: []string{"Z"}}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := twoSegmentOptions()
			tt.mutate(&opts)
			_, err := NewNetwork(opts)
			assert.Error(t, err)
		})
	}
}

func TestNetwork_SingleVehicleLifecycle(t *testing.T) {
	n, err := NewNetwork(twoSegmentOptions())
	require.NoError(t, err)

	wantSegment := []string{"A", "A", "B", "B"}
	for step, seg := range wantSegment {
		n.Step()
		active, err := n.ActiveEntities()
		require.NoError(t, err)
		require.Len(t, active, 1, "step %d", step+1)
		assert.Equal(t, "veh-1", active[0].ID)
		assert.Equal(t, seg, active[0].SegmentID, "step %d", step+1)
		assert.Equal(t, "Red", active[0].Color)
		assert.Equal(t, "R", active[0].RouteID)
		assert.Equal(t, 10.0, active[0].Speed)
	}

	n.Step()
	active, err := n.ActiveEntities()
	require.NoError(t, err)
	assert.Empty(t, active)

	now, err := n.CurrentTime()
	require.NoError(t, err)
	assert.Equal(t, 5.0, now)

	steps, spawned, exited := n.Stats()
	assert.Equal(t, 5, steps)
	assert.Equal(t, 1, spawned)
	assert.Equal(t, 1, exited)
}

func TestNetwork_SignalQueue(t *testing.T) {
	opts := twoSegmentOptions()
	opts.SpawnEvery = 1
	opts.SignalCycle = 4
	n, err := NewNetwork(opts)
	require.NoError(t, err)

	cp, err := n.ControlPointCount()
	require.NoError(t, err)
	assert.Equal(t, 1, cp)

	stoppedOnA := func() int {
		active, err := n.ActiveEntities()
		require.NoError(t, err)
		c := 0
		for _, e := range active {
			if e.SegmentID == "A" && e.Speed == 0 {
				c++
			}
		}
		return c
	}

	for i := 0; i < 3; i++ {
		n.Step()
	}
	assert.Equal(t, 1, stoppedOnA())

	n.Step()
	assert.Equal(t, 2, stoppedOnA())
	count, err := n.SegmentVehicleCount("A")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	n.Step() // green again
	assert.Equal(t, 0, stoppedOnA())
	count, err = n.SegmentVehicleCount("B")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNetwork_SourceErrors(t *testing.T) {
	n, err := NewNetwork(twoSegmentOptions())
	require.NoError(t, err)

	_, err = n.SegmentVehicleCount("nope")
	assert.Error(t, err)
	_, err = n.SegmentLength("nope")
	assert.Error(t, err)

	length, err := n.SegmentLength("B")
	require.NoError(t, err)
	assert.Equal(t, 20.0, length)

	segs, err := n.Segments()
	require.NoError(t, err)
	assert.Equal(t, []stats.Segment{{ID: "A", Length: 20}, {ID: "B", Length: 20}}, segs)
}

func TestNetwork_RoundRobinRoutes(t *testing.T) {
	n, err := NewNetwork(OptionsFromConfig(config.DefaultEngineConfig()))
	require.NoError(t, err)

	n.Step()
	n.Step()
	active, err := n.ActiveEntities()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "A-B-D", active[0].RouteID)
	assert.Equal(t, "A-C-D", active[1].RouteID)
	assert.Equal(t, "Red", active[0].Color)
	assert.Equal(t, "Blue", active[1].Color)

	cp, err := n.ControlPointCount()
	require.NoError(t, err)
	assert.Equal(t, 2, cp)
}
