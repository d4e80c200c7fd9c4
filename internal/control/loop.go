package control

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/congestion"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/jaya"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region loop
// Loop sequences the optimizer and the congestion controller against a simulation.
type Loop struct {
	cfg        config.Config
	sim        traffic.Simulation
	optimizer  *jaya.Optimizer
	controller *congestion.Controller
	logger     *log.Logger

	// Recorder receives loop events when set.
	Recorder Recorder
}

// NewLoop wires an optimizer and controller over sim. A nil rng seeds from
// cfg.Seed; a nil logger uses log.Default().
func NewLoop(cfg config.Config, sim traffic.Simulation, rng jaya.Rand, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		cfg:        cfg,
		sim:        sim,
		optimizer:  jaya.New(cfg, rng),
		controller: congestion.NewController(cfg, sim, logger),
		logger:     logger,
	}
}

// #endregion loop

// #region run
// Run steps the simulation until no more vehicles are expected, the context
// ends, or a call fails with anything other than ErrInvalidJunction.
// The junction set is read once at start.
func (l *Loop) Run(ctx context.Context, runID string) (State, error) {
	ids, err := l.sim.JunctionIDs(ctx)
	if err != nil {
		return State{RunID: runID}, fmt.Errorf("junction ids: %w", err)
	}
	st := State{RunID: runID, Junctions: ids}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		remaining, err := l.sim.MinExpectedVehicles(ctx)
		if err != nil {
			return st, fmt.Errorf("min expected vehicles: %w", err)
		}
		if remaining <= 0 {
			return st, nil
		}
		if err := l.Tick(ctx, &st); err != nil {
			return st, err
		}
	}
}

// #endregion run

// #region tick
// Tick runs one control iteration: advance one tick, optimize on the
// cadence, adjust every junction, then count the step.
func (l *Loop) Tick(ctx context.Context, st *State) error {
	if err := l.sim.Step(ctx); err != nil {
		return fmt.Errorf("step %d: %w", st.Step, err)
	}
	st.Ticks++

	if st.Step%l.cfg.OptimizationInterval == 0 {
		if err := l.optimize(ctx, st); err != nil {
			return err
		}
	}

	for _, j := range st.Junctions {
		d, err := l.controller.AdjustJunction(ctx, j)
		st.Ticks += d.DrainTicks
		if err != nil {
			if errors.Is(err, traffic.ErrInvalidJunction) {
				l.skip(ctx, st, j, err)
				continue
			}
			return err
		}
		if d.Critical {
			l.record(ctx, st, EventCritical, j, fmt.Sprintf("lane=%s queue=%d", d.MaxLane, d.MaxQueue))
		}
		if d.DrainCapped {
			l.record(ctx, st, EventDrainCapped, j, fmt.Sprintf("lane=%s ticks=%d threshold=%.1f", d.MaxLane, d.DrainTicks, d.Threshold))
		}
	}

	st.Step++
	return nil
}

// #endregion tick

// #region optimize
func (l *Loop) optimize(ctx context.Context, st *State) error {
	var objective jaya.Objective
	if l.cfg.Objective == config.ObjectiveWaiting {
		waits, err := l.waiting(ctx, st)
		if err != nil {
			return err
		}
		objective = jaya.WaitingObjective(waits)
	}

	res := l.optimizer.Optimize(st.Junctions, objective)
	st.OptimizerRuns++

	for _, j := range st.Junctions {
		d, ok := res.Durations[j]
		if !ok {
			continue
		}
		if err := l.sim.SetPhaseDuration(ctx, j, d); err != nil {
			if errors.Is(err, traffic.ErrInvalidJunction) {
				l.skip(ctx, st, j, err)
				continue
			}
			return fmt.Errorf("commit duration %s: %w", j, err)
		}
		l.logger.Printf("Adjusted traffic light %s to duration %g", j, d)
	}

	l.record(ctx, st, EventOptimizerRun, "", fmt.Sprintf("objective=%.3f junctions=%d iterations=%d", res.Objective, len(res.Durations), res.Iterations))
	return nil
}

// waiting observes per-junction waiting time, leaving out junctions that
// have disappeared.
func (l *Loop) waiting(ctx context.Context, st *State) (map[traffic.JunctionID]float64, error) {
	waits := make(map[traffic.JunctionID]float64, len(st.Junctions))
	for _, j := range st.Junctions {
		lanes, err := traffic.ObserveLanes(ctx, l.sim, j)
		if err != nil {
			if errors.Is(err, traffic.ErrInvalidJunction) {
				continue
			}
			return nil, fmt.Errorf("observe %s: %w", j, err)
		}
		for _, lane := range lanes {
			waits[j] += lane.Waiting
		}
	}
	return waits, nil
}

// #endregion optimize

// #region events
func (l *Loop) skip(ctx context.Context, st *State, j traffic.JunctionID, err error) {
	st.Skipped++
	l.logger.Printf("Skipping %s at step %d: %v", j, st.Step, err)
	l.record(ctx, st, EventJunctionSkipped, j, err.Error())
}

func (l *Loop) record(ctx context.Context, st *State, kind EventKind, j traffic.JunctionID, detail string) {
	if l.Recorder == nil {
		return
	}
	ev := Event{Step: st.Step, Tick: st.Ticks, Kind: kind, Junction: j, Detail: detail}
	if err := l.Recorder.Record(ctx, ev); err != nil {
		l.logger.Printf("record %s: %v", kind, err)
	}
}

// #endregion events
