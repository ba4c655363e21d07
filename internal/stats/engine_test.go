package stats

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.report/internal/monitoring"
)

func quietLogs(t *testing.T) *[]string {
	t.Helper()
	original := monitoring.Logf
	var mu sync.Mutex
	lines := []string{}
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.Logf = original })
	return &lines
}

func testConfig() Config {
	return Config{
		MinStoppedVehicles:    3,
		StoppedSpeedThreshold: 0.5,
		Routes:                map[string][]string{"R1": {"S1"}},
	}
}

// One vehicle present for ticks 1-2 with speeds 10 and 0, absent at tick 3.
func TestEngine_ScenarioA(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 100}}
	v := func(speed float64) []EntitySnapshot {
		return []EntitySnapshot{{ID: "v1", Speed: speed, SegmentID: "S1", Color: "Red", RouteID: "R1"}}
	}
	src := newScriptedSource(
		frame{time: 1.0, entities: v(10), segments: seg},
		frame{time: 2.0, entities: v(0), segments: seg},
		frame{time: 3.0, segments: seg},
	)
	e := NewEngine(src, testConfig())

	for i := 0; i < 3; i++ {
		rep := e.CollectTick()
		assert.Empty(t, rep.Warnings)
		assert.Equal(t, i+1, rep.Tick)
	}

	rec, ok := e.Vehicle("v1")
	require.True(t, ok)
	assert.Equal(t, 1.0, rec.EntryTime)
	assert.Equal(t, 3.0, rec.ExitTime)

	assert.Equal(t, []float64{10, 0, 0}, e.SpeedHistory())
	s1, _ := e.SpeedAt(1)
	s2, _ := e.SpeedAt(2)
	assert.Equal(t, 10.0, s1)
	assert.Equal(t, 0.0, s2)

	assert.Equal(t, 2.0, e.AverageTravelTime("R1"))
	assert.Equal(t, []float64{2.0}, e.TravelTimeSamples("R1"))
	assert.Equal(t, 3, e.TickCount())
	assert.Equal(t, 3.0, e.SimTime())
}

// Segment S1 of length 100 with 2, 4, 6 vehicles; 4 of them stopped at tick 2.
func TestEngine_ScenarioB(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 100}}
	tick2 := append(vehicles("S1", 4, 0.2, "stop"), vehicles("S1", 0, 8, "move")...)
	src := newScriptedSource(
		frame{time: 1, segments: seg, entities: vehicles("S1", 2, 8, "a")},
		frame{time: 2, segments: seg, entities: tick2},
		frame{time: 3, segments: seg, entities: vehicles("S1", 6, 8, "c")},
	)
	e := NewEngine(src, testConfig())

	e.CollectTick()
	assert.Empty(t, e.HistoricalCongestion())

	e.CollectTick()
	assert.Equal(t, map[string]int{"S1": 4}, e.HistoricalCongestion())
	assert.Equal(t, map[string]int{"S1": 4}, e.CurrentCongestion())

	e.CollectTick()
	assert.Equal(t, map[string]int{"S1": 4}, e.HistoricalCongestion())
	assert.Empty(t, e.CurrentCongestion())

	assert.InDeltaSlice(t, []float64{0.02, 0.04, 0.06}, e.DensityHistory("S1"), 1e-12)
	assert.InDelta(t, 0.04, e.AverageDensity("S1"), 1e-12)
}

func TestEngine_TravelTimeMatchesLifecycle(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 50}}
	a := EntitySnapshot{ID: "a", Speed: 5, SegmentID: "S1", RouteID: "R1"}
	b := EntitySnapshot{ID: "b", Speed: 5, SegmentID: "S1", RouteID: "R1"}
	ghost := EntitySnapshot{ID: "g", Speed: 5, SegmentID: "S1", RouteID: "nowhere"}
	src := newScriptedSource(
		frame{time: 0, segments: seg, entities: []EntitySnapshot{a, ghost}},
		frame{time: 2, segments: seg, entities: []EntitySnapshot{a, b}},
		frame{time: 5, segments: seg, entities: []EntitySnapshot{b}},
		frame{time: 9, segments: seg},
	)
	e := NewEngine(src, testConfig())
	for i := 0; i < 4; i++ {
		e.CollectTick()
	}

	for _, v := range e.Vehicles() {
		require.True(t, v.HasExit, v.ID)
		assert.GreaterOrEqual(t, v.ExitTime, v.EntryTime)
	}
	// a: 0 -> 5, b: 2 -> 9
	assert.ElementsMatch(t, []float64{5, 7}, e.TravelTimeSamples("R1"))
	assert.Equal(t, 6.0, e.AverageTravelTime("R1"))
	assert.Equal(t, 0.0, e.AverageTravelTime("nowhere"))

	before := e.AverageTravelTime("R1")
	e.RecomputeTravelTimes()
	e.RecomputeTravelTimes()
	assert.Equal(t, before, e.AverageTravelTime("R1"))
	assert.Equal(t, 1, e.Snapshot().UnknownRouteVehicles)
}

func TestEngine_TransientFailuresDoNotAbortTick(t *testing.T) {
	logs := quietLogs(t)
	segs := []Segment{{ID: "S1", Length: 100}, {ID: "S2", Length: 100}, {ID: ""}}
	good := EntitySnapshot{ID: "v1", Speed: 10, SegmentID: "S1", RouteID: "R1"}
	src := newScriptedSource(
		frame{
			time:     1,
			segments: segs,
			entities: []EntitySnapshot{
				good,
				{ID: "", Speed: 3},
				{ID: "bad", Speed: -1},
				good,
			},
			counts:     map[string]int{"S1": 1},
			countErr:   map[string]error{"S2": errFlaky},
			controlErr: errFlaky,
		},
	)
	e := NewEngine(src, testConfig())
	rep := e.CollectTick()

	assert.Equal(t, 1, rep.Tick)
	assert.Equal(t, 1, rep.Entities)
	assert.Equal(t, 1, rep.Segments)
	// empty id, negative speed, duplicate, empty segment id, S2 count, control points
	assert.Len(t, rep.Warnings, 6)
	assert.Len(t, *logs, 6)
	assert.Equal(t, 6, e.WarningCount())

	var tickErr *TickError
	found := false
	for _, w := range rep.Warnings {
		if errors.As(w, &tickErr) && tickErr.ID == "S2" {
			found = true
			assert.ErrorIs(t, w, errFlaky)
			assert.Contains(t, w.Error(), `segment "S2"`)
		}
	}
	assert.True(t, found, "S2 failure should be reported")

	assert.Equal(t, []float64{10}, e.SpeedHistory())
	assert.Equal(t, []float64{0.01}, e.DensityHistory("S1"))
	assert.Empty(t, e.DensityHistory("S2"))

	snap := e.Snapshot()
	assert.False(t, snap.ControlPointsKnown)
	assert.Equal(t, []string{"S1", "S2"}, snap.KnownSegments)
	assert.Equal(t, rep.Warnings, e.LastTick().Warnings)

	// The negative-speed entry is skipped for speed but still tracked as present.
	bad, ok := e.Vehicle("bad")
	require.True(t, ok)
	assert.False(t, bad.HasExit)
	assert.Equal(t, 1.0, bad.EntryTime)
	assert.Len(t, e.Vehicles(), 2)
}

func TestEngine_MalformedSpeedKeepsVehiclePresent(t *testing.T) {
	logs := quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 100}}
	v1 := func(speed float64) EntitySnapshot {
		return EntitySnapshot{ID: "v1", Speed: speed, SegmentID: "S1", RouteID: "R1"}
	}
	v2 := func(speed float64) EntitySnapshot {
		return EntitySnapshot{ID: "v2", Speed: speed, SegmentID: "S1", RouteID: "R1"}
	}
	src := newScriptedSource(
		frame{time: 1, segments: seg, entities: []EntitySnapshot{v1(5), v2(-2)}},
		frame{time: 2, segments: seg, entities: []EntitySnapshot{v1(math.NaN()), v2(5)}},
		frame{time: 3, segments: seg, entities: []EntitySnapshot{v1(5), v2(math.Inf(1))}},
		frame{time: 4, segments: seg, entities: []EntitySnapshot{v1(5)}},
	)
	e := NewEngine(src, testConfig())

	for i := 0; i < 3; i++ {
		e.CollectTick()
		rec, ok := e.Vehicle("v1")
		require.True(t, ok)
		assert.False(t, rec.HasExit, "tick %d", i+1)
		assert.Empty(t, e.TravelTimeSamples("R1"), "tick %d", i+1)
	}
	e.CollectTick()

	v1Rec, _ := e.Vehicle("v1")
	assert.False(t, v1Rec.HasExit)
	assert.Equal(t, 1.0, v1Rec.EntryTime)

	// First sighting had a bad speed; entry is still that tick's time.
	v2Rec, ok := e.Vehicle("v2")
	require.True(t, ok)
	assert.Equal(t, 2, v2Rec.Seq)
	assert.Equal(t, 1, v2Rec.EntryTick)
	assert.Equal(t, 1.0, v2Rec.EntryTime)
	assert.True(t, v2Rec.HasExit)
	assert.Equal(t, 4.0, v2Rec.ExitTime)

	assert.Equal(t, []float64{3}, e.TravelTimeSamples("R1"))
	assert.Equal(t, []float64{5, 5, 5, 5}, e.SpeedHistory())
	assert.Equal(t, 3, e.WarningCount())
	assert.Len(t, *logs, 3)
}

func TestEngine_EntityFetchFailureDoesNotExitVehicles(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 10}}
	v := []EntitySnapshot{{ID: "v1", Speed: 4, SegmentID: "S1", RouteID: "R1"}}
	stopped := vehicles("S1", 3, 0, "q")
	src := newScriptedSource(
		frame{time: 1, segments: seg, entities: append(stopped, v...)},
		frame{time: 2, segments: seg, entitiesErr: errFlaky, timeErr: errFlaky},
		frame{time: 3, segments: seg, entities: v},
	)
	e := NewEngine(src, testConfig())

	e.CollectTick()
	assert.Equal(t, map[string]int{"S1": 3}, e.CurrentCongestion())

	rep := e.CollectTick()
	assert.Len(t, rep.Warnings, 2)
	assert.Equal(t, 1.0, rep.Time, "time falls back to the previous tick")
	assert.Empty(t, e.CurrentCongestion())
	rec, _ := e.Vehicle("v1")
	assert.False(t, rec.HasExit)

	e.CollectTick()
	assert.Len(t, e.SpeedHistory(), 3)
	assert.Equal(t, []float64{4, 0, 4}, e.SpeedHistory())
	assert.Equal(t, map[string]int{"S1": 3}, e.HistoricalCongestion())

	q, _ := e.Vehicle("q0")
	assert.True(t, q.HasExit)
	assert.Equal(t, 3.0, q.ExitTime)
}

func TestEngine_SegmentListFailure(t *testing.T) {
	quietLogs(t)
	src := newScriptedSource(
		frame{time: 1, segments: []Segment{{ID: "S1", Length: 10}}},
		frame{time: 2, segmentsErr: errFlaky},
	)
	e := NewEngine(src, testConfig())
	e.CollectTick()
	rep := e.CollectTick()

	assert.Equal(t, 0, rep.Segments)
	assert.Len(t, e.DensityHistory("S1"), 1)
	assert.Len(t, e.SpeedHistory(), 2)
}

func TestEngine_SnapshotIsDetached(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 10}}
	src := newScriptedSource(
		frame{time: 1, segments: seg, entities: vehicles("S1", 3, 0, "v"), control: 4},
		frame{time: 2, segments: seg, entities: vehicles("S1", 3, 0, "v"), control: 4},
	)
	e := NewEngine(src, testConfig())
	e.CollectTick()

	snap := e.Snapshot()
	require.NotEmpty(t, snap.RunID)
	assert.Equal(t, e.RunID(), snap.RunID)
	assert.Equal(t, 1, snap.Tick)
	assert.True(t, snap.ControlPointsKnown)
	assert.Equal(t, 4, snap.ControlPoints)
	assert.Equal(t, 3, snap.MinStoppedVehicles)
	assert.Equal(t, 0.5, snap.StoppedSpeedThreshold)

	snap.SpeedHistory[0] = 42
	snap.DensityHistory["S1"][0] = 42
	snap.HistoricalCongestion["S1"] = 42
	snap.Vehicles[0].ID = "hacked"

	e.CollectTick()
	fresh := e.Snapshot()
	assert.Equal(t, []float64{0, 0}, fresh.SpeedHistory)
	assert.Equal(t, []float64{0.3, 0.3}, fresh.DensityHistory["S1"])
	assert.Equal(t, 3, fresh.HistoricalCongestion["S1"])
	assert.Equal(t, "v0", fresh.Vehicles[0].ID)
	assert.Equal(t, 1, snap.Tick)
}

// Readers run concurrently with the producer; run with -race.
func TestEngine_ConcurrentReaders(t *testing.T) {
	quietLogs(t)
	seg := []Segment{{ID: "S1", Length: 100}, {ID: "S2", Length: 50}}
	var frames []frame
	for i := 0; i < 200; i++ {
		ents := append(vehicles("S1", i%7, float64(i%3), "a"), vehicles("S2", i%5, 0, "b")...)
		frames = append(frames, frame{time: float64(i), segments: seg, entities: ents})
	}
	e := NewEngine(newScriptedSource(frames...), testConfig())

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := e.Snapshot()
				// A snapshot is always a whole tick: one speed value and one
				// density sample per segment per tick.
				if len(snap.SpeedHistory) != snap.Tick {
					t.Errorf("speed history %d != tick %d", len(snap.SpeedHistory), snap.Tick)
					return
				}
				if len(snap.DensityHistory["S1"]) != len(snap.DensityHistory["S2"]) {
					t.Errorf("partial density update observed")
					return
				}
				_ = e.CurrentAverageSpeed()
				_ = e.AverageDensity("S1")
				_ = e.HistoricalCongestion()
			}
		}()
	}

	for i := 0; i < len(frames); i++ {
		e.CollectTick()
	}
	close(done)
	wg.Wait()

	assert.Equal(t, len(frames), e.TickCount())
	assert.Len(t, e.SpeedHistory(), len(frames))
}

func TestEngine_ZeroValueAccessors(t *testing.T) {
	e := NewEngine(newScriptedSource(), DefaultConfig())
	assert.Equal(t, 0, e.TickCount())
	assert.Equal(t, 0.0, e.CurrentAverageSpeed())
	assert.Empty(t, e.SpeedHistory())
	assert.Equal(t, 0.0, e.AverageDensity("S1"))
	assert.Empty(t, e.CurrentCongestion())
	assert.Empty(t, e.HistoricalCongestion())
	assert.Equal(t, 0.0, e.AverageTravelTime("R1"))
	assert.Equal(t, 0.0, e.TravelTimePercentile("R1", 0.85))
	assert.Empty(t, e.Vehicles())
	_, ok := e.Vehicle("v")
	assert.False(t, ok)
	_, ok = e.SpeedAt(1)
	assert.False(t, ok)
}
