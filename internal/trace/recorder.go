package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region recorder
// Recorder passes every call through to the wrapped simulation and, after
// each Step, stores what every controlled lane looked like.
type Recorder struct {
	traffic.Simulation

	db    *sql.DB
	runID string
	order []traffic.JunctionID
	tick  int
}

// NewRecorder captures sim's topology and its tick-0 lane state under runID.
func NewRecorder(ctx context.Context, db *sql.DB, runID string, sim traffic.Simulation) (*Recorder, error) {
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	r := &Recorder{Simulation: sim, db: db, runID: runID}

	ids, err := sim.JunctionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("trace junctions: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, j := range ids {
		lanes, err := traffic.UniqueLanes(ctx, sim, j)
		if err != nil {
			return nil, fmt.Errorf("trace %s: %w", j, err)
		}
		phases, err := sim.PhaseCount(ctx, j)
		if err != nil {
			return nil, fmt.Errorf("trace %s phase count: %w", j, err)
		}
		phase, err := sim.CurrentPhase(ctx, j)
		if err != nil {
			return nil, fmt.Errorf("trace %s phase: %w", j, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trace_junctions (run_id, ord, junction_id, phase_count, initial_phase) VALUES (?, ?, ?, ?, ?)`,
			runID, i, string(j), phases, phase,
		); err != nil {
			return nil, fmt.Errorf("insert junction %s: %w", j, err)
		}
		for k, l := range lanes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trace_lanes (run_id, junction_id, ord, lane_id) VALUES (?, ?, ?, ?)`,
				runID, string(j), k, string(l),
			); err != nil {
				return nil, fmt.Errorf("insert lane %s: %w", l, err)
			}
		}
		r.order = append(r.order, j)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit topology: %w", err)
	}

	if err := r.sample(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// #endregion recorder

// #region step
// Step advances the wrapped simulation and records the new tick.
func (r *Recorder) Step(ctx context.Context) error {
	if err := r.Simulation.Step(ctx); err != nil {
		return err
	}
	r.tick++
	return r.sample(ctx)
}

// sample stores the current tick for every recorded lane. Lanes of a
// junction that has disappeared are left out of the tick.
func (r *Recorder) sample(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("trace tick %d: begin tx: %w", r.tick, err)
	}
	defer tx.Rollback()

	seen := make(map[traffic.LaneID]bool)
	for _, j := range r.order {
		obs, err := traffic.ObserveLanes(ctx, r.Simulation, j)
		if err != nil {
			if errors.Is(err, traffic.ErrInvalidJunction) {
				continue
			}
			return fmt.Errorf("trace tick %d: %w", r.tick, err)
		}
		for _, lane := range obs {
			if seen[lane.ID] {
				continue
			}
			seen[lane.ID] = true
			n, err := r.Simulation.LaneVehicleCount(ctx, lane.ID)
			if err != nil {
				return fmt.Errorf("trace tick %d lane %s: %w", r.tick, lane.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trace_samples (run_id, tick, lane_id, vehicles, stopped, waiting) VALUES (?, ?, ?, ?, ?, ?)`,
				r.runID, r.tick, string(lane.ID), n, lane.Queue, lane.Waiting,
			); err != nil {
				return fmt.Errorf("trace tick %d: insert %s: %w", r.tick, lane.ID, err)
			}
		}
	}
	return tx.Commit()
}

// #endregion step
