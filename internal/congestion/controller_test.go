package congestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic/traffictest"
)

// #region helpers
func quietController(cfg config.Config, sim traffic.Simulation) *Controller {
	return NewController(cfg, sim, log.New(io.Discard, "", 0))
}

// #endregion helpers

// #region idle-tests
func TestAdjustIdleJunctionIssuesNoCommands(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 4, "a", "b")

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if !d.Idle {
		t.Error("expected idle decision")
	}
	if len(sim.Commands) != 0 {
		t.Fatalf("expected no commands, got %+v", sim.Commands)
	}
	if sim.Tick != 0 {
		t.Fatalf("expected no extra ticks, got %d", sim.Tick)
	}
}

func TestAdjustJunctionWithoutLanes(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 2)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if !d.Idle || len(sim.Commands) != 0 {
		t.Fatalf("expected idle no-op, got %+v / %+v", d, sim.Commands)
	}
}

// #endregion idle-tests

// #region green-time-tests
func TestAdjustCriticalCongestionForcesMaxDuration(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 4, "a", "b")
	sim.SetCounts("a", 25)
	sim.SetCounts("b", 75, 30, 20)

	cfg := config.Default()
	d, err := quietController(cfg, sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if !d.Critical || d.MaxLane != "b" {
		t.Fatalf("expected critical decision on lane b, got %+v", d)
	}
	if d.DrainTicks != 2 {
		t.Fatalf("expected 2 drain ticks, got %d", d.DrainTicks)
	}
	if d.Committed != cfg.MaxPhaseDuration {
		t.Fatalf("expected %g, got %g", cfg.MaxPhaseDuration, d.Committed)
	}
	durs := sim.Durations("J1")
	if len(durs) != 1 || durs[0].Duration != 60 {
		t.Fatalf("expected one 60s command, got %+v", durs)
	}
}

func TestAdjustCriticalOverridesRatio(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 4, "a", "b", "c", "d")
	sim.SetCounts("a", 25, 5)
	sim.SetCounts("b", 25)
	sim.SetCounts("c", 25)
	sim.SetCounts("d", 25)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	// ratio alone would give floor(0.25*60) = 15
	if d.GreenTime != 15 {
		t.Fatalf("expected ratio green time 15, got %g", d.GreenTime)
	}
	if d.Committed != 60 {
		t.Fatalf("expected committed 60, got %g", d.Committed)
	}
	if d.MaxLane != "a" {
		t.Fatalf("expected first lane to win the tie, got %s", d.MaxLane)
	}
}

func TestAdjustRatioGreenTime(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 4, "a", "b", "c", "d")
	sim.SetCounts("a", 5, 1)
	sim.SetCounts("b", 5)
	sim.SetCounts("c", 5)
	sim.SetCounts("d", 5)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if d.TotalQueue != 20 || d.MaxQueue != 5 {
		t.Fatalf("expected total 20 max 5, got %d/%d", d.TotalQueue, d.MaxQueue)
	}
	if d.GreenTime != 15 || d.Committed != 15 || d.Critical {
		t.Fatalf("expected 15s non-critical, got %+v", d)
	}
	if d.Threshold != 1.5 {
		t.Fatalf("expected threshold 1.5, got %g", d.Threshold)
	}
}

func TestAdjustGreenTimeClampedToMin(t *testing.T) {
	sim := traffictest.New(100)
	lanes := make([]traffic.LaneID, 10)
	for i := range lanes {
		lanes[i] = traffic.LaneID(fmt.Sprintf("l%d", i))
		sim.SetCounts(lanes[i], 2)
	}
	sim.SetCounts("l0", 2, 0)
	sim.AddJunction("J1", 2, lanes...)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	// floor(0.1 * 60) = 6, clamped up to 10
	if d.Committed != 10 {
		t.Fatalf("expected 10, got %g", d.Committed)
	}
}

func TestAdjustDuplicateLanesCountedOnce(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 2, "a", "a", "b", "b")
	sim.SetCounts("a", 5)
	sim.SetCounts("b", 15, 0)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if d.TotalQueue != 20 {
		t.Fatalf("expected total 20, got %d", d.TotalQueue)
	}
	if d.Committed != 45 {
		t.Fatalf("expected floor(0.75*60)=45, got %g", d.Committed)
	}
}

// #endregion green-time-tests

// #region drain-tests
func TestDrainExitsWhenQueueReachesThreshold(t *testing.T) {
	sim := traffictest.New(100)
	j := sim.AddJunction("J1", 3, "a")
	j.Phase = 1
	sim.SetCounts("a", 10, 9, 8, 7, 6, 5, 4, 3, 2, 1)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	// threshold = 3; tick 7 is the first read at or below it
	if d.DrainTicks != 7 {
		t.Fatalf("expected 7 drain ticks, got %d", d.DrainTicks)
	}
	if sim.Tick != 7 {
		t.Fatalf("expected simulation at tick 7, got %d", sim.Tick)
	}
	phases := sim.Phases("J1")
	if len(phases) != 1 {
		t.Fatalf("expected one phase command, got %+v", phases)
	}
	if phases[0].Tick != 7 {
		t.Fatalf("expected phase advance right after drain (tick 7), got tick %d", phases[0].Tick)
	}
	if phases[0].Phase != 2 || d.NewPhase != 2 || d.PrevPhase != 1 {
		t.Fatalf("expected phase 1 -> 2, got %+v", d)
	}
	if d.DrainCapped {
		t.Error("drain should not be capped")
	}
}

func TestDrainCapStillAdvancesPhase(t *testing.T) {
	sim := traffictest.New(1000)
	sim.AddJunction("J1", 2, "a")
	sim.SetCounts("a", 12)

	cfg := config.Default()
	cfg.MaxDrainTicks = 5
	d, err := quietController(cfg, sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if !d.DrainCapped || d.DrainTicks != 5 {
		t.Fatalf("expected capped after 5 ticks, got %+v", d)
	}
	if len(sim.Phases("J1")) != 1 {
		t.Fatal("expected phase advance after capped drain")
	}
}

func TestUnboundedDrainHonoursCancellation(t *testing.T) {
	sim := traffictest.New(1000)
	sim.AddJunction("J1", 2, "a")
	sim.SetCounts("a", 12)

	cfg := config.Default()
	cfg.MaxDrainTicks = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietController(cfg, sim).AdjustJunction(ctx, "J1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sim.Phases("J1")) != 0 {
		t.Fatal("phase must not advance after cancellation")
	}
}

// #endregion drain-tests

// #region phase-tests
func TestAdvancePhaseWraps(t *testing.T) {
	sim := traffictest.New(100)
	j := sim.AddJunction("J1", 4, "a")
	j.Phase = 3
	sim.SetCounts("a", 4, 1)

	d, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if err != nil {
		t.Fatalf("AdjustJunction: %v", err)
	}
	if d.NewPhase != 0 || j.Phase != 0 {
		t.Fatalf("expected wrap to 0, got %d", d.NewPhase)
	}
}

func TestZeroPhaseCountIsInvalid(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 0, "a")
	sim.SetCounts("a", 4, 1)

	_, err := quietController(config.Default(), sim).AdjustJunction(context.Background(), "J1")
	if !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("expected ErrInvalidJunction, got %v", err)
	}
}

// #endregion phase-tests

// #region adjust-tests
func TestAdjustSkipsInvalidJunction(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J2", 2, "b")
	sim.SetCounts("b", 4, 1)

	decisions, err := quietController(config.Default(), sim).Adjust(context.Background(), []traffic.JunctionID{"gone", "J2"})
	if !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("expected ErrInvalidJunction, got %v", err)
	}
	if len(decisions) != 1 || decisions[0].Junction != "J2" {
		t.Fatalf("expected J2 to be processed, got %+v", decisions)
	}
}

func TestAdjustStopsOnProviderFailure(t *testing.T) {
	sim := traffictest.New(100)
	sim.AddJunction("J1", 2, "a")
	sim.AddJunction("J2", 2, "b")
	sim.CountErr = fmt.Errorf("socket closed: %w", traffic.ErrProviderUnavailable)

	decisions, err := quietController(config.Default(), sim).Adjust(context.Background(), []traffic.JunctionID{"J1", "J2"})
	if !errors.Is(err, traffic.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(decisions) != 0 {
		t.Fatalf("expected no decisions, got %d", len(decisions))
	}
}

func TestAdjustEmptyInput(t *testing.T) {
	sim := traffictest.New(100)
	decisions, err := quietController(config.Default(), sim).Adjust(context.Background(), nil)
	if err != nil || len(decisions) != 0 {
		t.Fatalf("expected no-op, got %v / %v", decisions, err)
	}
}

// #endregion adjust-tests
