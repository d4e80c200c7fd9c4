package trace

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"math"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic/traffictest"

	_ "modernc.org/sqlite"
)

// #region helpers
func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func smallTrace() *Trace {
	return &Trace{
		RunID: "t",
		Junctions: []Junction{
			{ID: "J1", PhaseCount: 4, InitialPhase: 2, Lanes: []traffic.LaneID{"a", "b"}},
		},
		Samples: map[traffic.LaneID][]Sample{
			"a": {{Vehicles: 3, Stopped: 2, Waiting: 10}, {Vehicles: 1, Stopped: 0, Waiting: 4}},
			"b": {{}},
		},
		Ticks: 3,
	}
}

// #endregion helpers

// #region recorder-tests
func TestRecorderCapturesTopologyAndTicks(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	sim := traffictest.New(4)
	j := sim.AddJunction("J1", 3, "a", "b", "a")
	j.Phase = 1
	sim.AddJunction("J2", 2, "c")
	sim.SetCounts("a", 2, 5, 1, 0)
	sim.Vehicles["a"] = []traffictest.Vehicle{{ID: "v1", Speed: 0, Waiting: 3}, {ID: "v2", Speed: 2, Waiting: 1}}

	rec, err := NewRecorder(ctx, db, "run-1", sim)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := rec.Step(ctx); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	tr, err := Load(db, "run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tr.Junctions) != 2 || tr.Junctions[0].ID != "J1" || tr.Junctions[1].ID != "J2" {
		t.Fatalf("unexpected junctions %+v", tr.Junctions)
	}
	j1 := tr.Junctions[0]
	if j1.PhaseCount != 3 || j1.InitialPhase != 1 || len(j1.Lanes) != 2 || j1.Lanes[1] != "b" {
		t.Fatalf("unexpected J1 topology %+v", j1)
	}
	if tr.Ticks != 4 {
		t.Fatalf("expected last tick 4, got %d", tr.Ticks)
	}

	want := []int{2, 5, 1, 0, 0}
	a := tr.Samples["a"]
	if len(a) != len(want) {
		t.Fatalf("expected %d samples for a, got %d", len(want), len(a))
	}
	for i, s := range a {
		if s.Vehicles != want[i] || s.Stopped != 1 || s.Waiting != 4 {
			t.Fatalf("tick %d: unexpected sample %+v", i, s)
		}
	}
	if len(tr.Samples["c"]) != 5 {
		t.Fatalf("expected samples for c at every tick, got %d", len(tr.Samples["c"]))
	}
}

func TestLoadWithoutTrace(t *testing.T) {
	db := tempDB(t)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := Load(db, "nothing"); !errors.Is(err, ErrNoTrace) {
		t.Fatalf("expected ErrNoTrace, got %v", err)
	}
}

// #endregion recorder-tests

// #region player-tests
func TestPlayerSynthesisesLaneState(t *testing.T) {
	p := NewPlayer(smallTrace())
	ctx := context.Background()

	lanes, err := traffic.ObserveLanes(ctx, p, "J1")
	if err != nil {
		t.Fatalf("ObserveLanes: %v", err)
	}
	if lanes[0].Queue != 2 || math.Abs(lanes[0].Waiting-10) > 1e-9 {
		t.Fatalf("unexpected lane a at tick 0: %+v", lanes[0])
	}
	if lanes[1].Queue != 0 || lanes[1].Waiting != 0 {
		t.Fatalf("unexpected lane b: %+v", lanes[1])
	}

	p.Step(ctx)
	lanes, _ = traffic.ObserveLanes(ctx, p, "J1")
	if lanes[0].Queue != 0 || math.Abs(lanes[0].Waiting-4) > 1e-9 {
		t.Fatalf("unexpected lane a at tick 1: %+v", lanes[0])
	}

	// the recording ends at tick 1; the last sample holds
	p.Step(ctx)
	if n, _ := p.LaneVehicleCount(ctx, "a"); n != 1 {
		t.Fatalf("expected held count 1, got %d", n)
	}
	if left, _ := p.MinExpectedVehicles(ctx); left != 1 {
		t.Fatalf("expected 1 tick left, got %d", left)
	}
}

func TestPlayerPhasesAndCommands(t *testing.T) {
	p := NewPlayer(smallTrace())
	ctx := context.Background()

	if ph, _ := p.CurrentPhase(ctx, "J1"); ph != 2 {
		t.Fatalf("expected initial phase 2, got %d", ph)
	}
	if err := p.SetPhase(ctx, "J1", 3); err != nil {
		t.Fatalf("SetPhase: %v", err)
	}
	if ph, _ := p.CurrentPhase(ctx, "J1"); ph != 3 {
		t.Fatalf("expected phase 3, got %d", ph)
	}
	if err := p.SetPhase(ctx, "J1", 4); err == nil {
		t.Fatal("expected out of range phase to fail")
	}
	if err := p.SetPhaseDuration(ctx, "J1", 30); err != nil {
		t.Fatalf("SetPhaseDuration: %v", err)
	}
	cmds := p.Commands()
	if len(cmds) != 2 || !cmds[0].SetPhase || cmds[1].Duration != 30 {
		t.Fatalf("unexpected commands %+v", cmds)
	}
}

func TestPlayerUnknownReferences(t *testing.T) {
	p := NewPlayer(smallTrace())
	ctx := context.Background()

	if _, err := p.PhaseCount(ctx, "J9"); !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("junction: %v", err)
	}
	if _, err := p.LaneVehicleCount(ctx, "zz"); !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("lane: %v", err)
	}
	// lane a has three vehicles at tick 0
	if _, err := p.VehicleSpeed(ctx, "a#3"); !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("vehicle: %v", err)
	}
	if _, err := p.VehicleSpeed(ctx, "nohash"); !errors.Is(err, traffic.ErrInvalidJunction) {
		t.Fatalf("malformed vehicle: %v", err)
	}
}

// #endregion player-tests

// #region replay-tests
func TestReplayReproducesControllerDecisions(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	cfg := config.Default()
	quiet := log.New(io.Discard, "", 0)

	sim := traffictest.New(6)
	sim.AddJunction("J1", 2, "a")
	sim.AddJunction("J2", 3, "b")
	sim.SetCounts("a", 0, 6, 1, 0)
	sim.SetCounts("b", 0, 0, 0, 4, 0)

	rec, err := NewRecorder(ctx, db, "live", sim)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	live, err := control.NewLoop(cfg, rec, nil, quiet).Run(ctx, "live")
	if err != nil {
		t.Fatalf("live Run: %v", err)
	}

	tr, err := Load(db, "live")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := NewPlayer(tr)
	replayed, err := control.NewLoop(cfg, p, nil, quiet).Run(ctx, "replay")
	if err != nil {
		t.Fatalf("replay Run: %v", err)
	}

	if replayed.Step != live.Step || replayed.Ticks != live.Ticks {
		t.Fatalf("replay diverged: live %d/%d, replay %d/%d", live.Step, live.Ticks, replayed.Step, replayed.Ticks)
	}
	var phases int
	for _, c := range p.Commands() {
		if c.SetPhase {
			phases++
		}
	}
	if want := len(sim.Phases("J1")) + len(sim.Phases("J2")); phases != want {
		t.Fatalf("expected %d phase switches, got %d", want, phases)
	}
}

func TestFixtureFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := smallTrace().WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tr, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if tr.Ticks != 3 || len(tr.Samples["a"]) != 2 || tr.Junctions[0].InitialPhase != 2 {
		t.Fatalf("unexpected trace %+v", tr)
	}
}

// #endregion replay-tests
