package sim

import (
	"context"
	"time"

	"github.com/banshee-data/traffic.report/internal/monitoring"
	"github.com/banshee-data/traffic.report/internal/stats"
	"github.com/banshee-data/traffic.report/internal/timeutil"
)

var log = monitoring.Component("runner")

// Stepper advances a simulation by one tick.
type Stepper interface {
	Step()
}

// Collector consumes one tick of simulation state. *stats.Engine
// satisfies it.
type Collector interface {
	CollectTick() stats.TickReport
}

// Runner steps a simulation and collects statistics once per tick, strictly
// sequentially. With a positive Interval ticks are paced by Clock;
// otherwise they run back to back.
type Runner struct {
	Sim       Stepper
	Collector Collector
	Clock     timeutil.Clock
	Interval  time.Duration

	// OnTick, if set, is called after each collected tick.
	OnTick func(stats.TickReport)
}

// Run executes ticks steps, or steps until ctx is done when ticks <= 0.
// It returns the number of ticks collected and ctx.Err() if it stopped
// early.
func (r *Runner) Run(ctx context.Context, ticks int) (int, error) {
	var tickC <-chan time.Time
	if r.Interval > 0 {
		clock := r.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		ticker := clock.NewTicker(r.Interval)
		defer ticker.Stop()
		tickC = ticker.C()
	}

	done := 0
	warnings := 0
	for ticks <= 0 || done < ticks {
		if tickC != nil {
			select {
			case <-ctx.Done():
				return done, ctx.Err()
			case <-tickC:
			}
		} else if err := ctx.Err(); err != nil {
			return done, err
		}

		r.Sim.Step()
		rep := r.Collector.CollectTick()
		done++
		warnings += len(rep.Warnings)
		if r.OnTick != nil {
			r.OnTick(rep)
		}
	}
	log.Logf("collected %d ticks (%d warnings)", done, warnings)
	return done, nil
}
