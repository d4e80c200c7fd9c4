package congestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/samber/lo"
)

// #region controller
// Controller turns live queue counts into green time and phase changes.
type Controller struct {
	cfg    config.Config
	sim    traffic.Simulation
	logger *log.Logger
}

// NewController creates a controller. A nil logger uses log.Default().
func NewController(cfg config.Config, sim traffic.Simulation, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{cfg: cfg, sim: sim, logger: logger}
}

type laneQueue struct {
	lane  traffic.LaneID
	count int
}

// #endregion controller

// #region adjust
// Adjust runs AdjustJunction for every junction. Junctions failing with
// ErrInvalidJunction are skipped and their errors joined into the result;
// any other error stops the pass immediately.
func (c *Controller) Adjust(ctx context.Context, junctions []traffic.JunctionID) ([]Decision, error) {
	decisions := make([]Decision, 0, len(junctions))
	var skipped []error
	for _, j := range junctions {
		d, err := c.AdjustJunction(ctx, j)
		if err != nil {
			if errors.Is(err, traffic.ErrInvalidJunction) {
				skipped = append(skipped, err)
				continue
			}
			return decisions, err
		}
		decisions = append(decisions, d)
	}
	return decisions, errors.Join(skipped...)
}

// #endregion adjust

// #region adjust-junction
// AdjustJunction commands a green time for the junction, waits for its
// busiest lane to drain below the dynamic threshold, then advances the phase.
// A junction with no queued vehicles is left alone.
func (c *Controller) AdjustJunction(ctx context.Context, junction traffic.JunctionID) (Decision, error) {
	d := Decision{Junction: junction}

	queues, err := c.readQueues(ctx, junction)
	if err != nil {
		return d, err
	}
	d.TotalQueue = lo.SumBy(queues, func(q laneQueue) int { return q.count })
	if d.TotalQueue == 0 {
		d.Idle = true
		return d, nil
	}

	// first lane wins ties
	busiest := lo.MaxBy(queues, func(a, b laneQueue) bool { return a.count > b.count })
	d.MaxLane, d.MaxQueue = busiest.lane, busiest.count
	d.Threshold = float64(d.MaxQueue) * c.cfg.DynamicQueueFraction
	d.GreenTime = c.cfg.Clamp(math.Floor(float64(d.MaxQueue) / float64(d.TotalQueue) * c.cfg.MaxPhaseDuration))

	if d.MaxQueue > c.cfg.CriticalQueueThreshold {
		d.Critical = true
		d.Committed = c.cfg.MaxPhaseDuration
	} else {
		d.Committed = d.GreenTime
	}
	if err := c.sim.SetPhaseDuration(ctx, junction, d.Committed); err != nil {
		return d, fmt.Errorf("set phase duration %s: %w", junction, err)
	}
	if d.Critical {
		c.logger.Printf("Critical congestion at %s, extending green to %gs", junction, d.Committed)
	} else {
		c.logger.Printf("Adjusted %s: Green for %gs (Queue: %d)", junction, d.Committed, d.MaxQueue)
	}

	if err := c.drain(ctx, &d); err != nil {
		return d, err
	}

	if err := c.advancePhase(ctx, &d); err != nil {
		return d, err
	}
	return d, nil
}

// #endregion adjust-junction

// #region drain
// drain steps the simulation until MaxLane's count is no longer above the
// threshold, the context ends, or MaxDrainTicks ticks have been spent.
func (c *Controller) drain(ctx context.Context, d *Decision) error {
	queue := d.MaxQueue
	for float64(queue) > d.Threshold {
		if c.cfg.MaxDrainTicks > 0 && d.DrainTicks >= c.cfg.MaxDrainTicks {
			d.DrainCapped = true
			c.logger.Printf("Drain wait at %s gave up after %d ticks (lane %s queue %d, threshold %.1f)",
				d.Junction, d.DrainTicks, d.MaxLane, queue, d.Threshold)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("drain %s: %w", d.Junction, err)
		}
		if err := c.sim.Step(ctx); err != nil {
			return fmt.Errorf("drain step %s: %w", d.Junction, err)
		}
		d.DrainTicks++

		n, err := c.sim.LaneVehicleCount(ctx, d.MaxLane)
		if err != nil {
			return fmt.Errorf("lane vehicle count %s: %w", d.MaxLane, err)
		}
		queue = n
	}
	return nil
}

// #endregion drain

// #region advance-phase
func (c *Controller) advancePhase(ctx context.Context, d *Decision) error {
	current, err := c.sim.CurrentPhase(ctx, d.Junction)
	if err != nil {
		return fmt.Errorf("current phase %s: %w", d.Junction, err)
	}
	count, err := c.sim.PhaseCount(ctx, d.Junction)
	if err != nil {
		return fmt.Errorf("phase count %s: %w", d.Junction, err)
	}
	if count <= 0 {
		return fmt.Errorf("junction %s reports %d phases: %w", d.Junction, count, traffic.ErrInvalidJunction)
	}

	d.PrevPhase = current
	d.NewPhase = (current + 1) % count
	if err := c.sim.SetPhase(ctx, d.Junction, d.NewPhase); err != nil {
		return fmt.Errorf("set phase %s: %w", d.Junction, err)
	}
	c.logger.Printf("Switched phase for %s to %d", d.Junction, d.NewPhase)
	return nil
}

// #endregion advance-phase

// #region read-queues
func (c *Controller) readQueues(ctx context.Context, junction traffic.JunctionID) ([]laneQueue, error) {
	lanes, err := traffic.UniqueLanes(ctx, c.sim, junction)
	if err != nil {
		return nil, err
	}
	queues := make([]laneQueue, 0, len(lanes))
	for _, l := range lanes {
		n, err := c.sim.LaneVehicleCount(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("lane vehicle count %s: %w", l, err)
		}
		queues = append(queues, laneQueue{lane: l, count: n})
	}
	return queues, nil
}

// #endregion read-queues
