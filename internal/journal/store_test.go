package journal

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic/traffictest"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// #region run-tests
func TestStartAndFinishRun(t *testing.T) {
	s := tempStore(t)
	cfg := config.Default()
	cfg.Seed = 99

	id, err := s.StartRun("bridge", cfg)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusRunning || run.FinishedAt != nil {
		t.Fatalf("expected an open running run, got %+v", run)
	}
	if run.Config != cfg {
		t.Fatalf("config did not round trip: %+v", run.Config)
	}

	st := control.State{RunID: id, Step: 12, Ticks: 20, OptimizerRuns: 1}
	if err := s.FinishRun(st, StatusCompleted); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, _ = s.GetRun(id)
	if run.Status != StatusCompleted || run.FinishedAt == nil {
		t.Fatalf("expected a finished run, got %+v", run)
	}
	if run.Steps != 12 || run.Ticks != 20 || run.OptimizerRuns != 1 {
		t.Fatalf("counters not stored: %+v", run)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatal("finished before started")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := tempStore(t)
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := s.FinishRun(control.State{RunID: "missing"}, StatusFailed); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound from FinishRun, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := tempStore(t)
	var ids []string
	for _, tr := range []string{"bridge", "grpc", "replay"} {
		id, err := s.StartRun(tr, config.Default())
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != ids[2] || runs[2].RunID != ids[0] {
		t.Fatalf("unexpected order: %+v", runs)
	}

	last, err := s.ListRuns(1)
	if err != nil || len(last) != 1 || last[0].Transport != "replay" {
		t.Fatalf("ListRuns(1): %+v %v", last, err)
	}
}

// #endregion run-tests

// #region event-tests
func TestLogAndListEvents(t *testing.T) {
	s := tempStore(t)
	id, _ := s.StartRun("bridge", config.Default())
	ctx := context.Background()

	events := []control.Event{
		{Step: 0, Tick: 1, Kind: control.EventOptimizerRun, Detail: "objective=350"},
		{Step: 4, Tick: 9, Kind: control.EventCritical, Junction: "J1", Detail: "lane=a queue=25"},
		{Step: 4, Tick: 9, Kind: control.EventJunctionSkipped, Junction: "J2"},
	}
	for _, ev := range events {
		if err := s.LogEvent(ctx, id, ev); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}

	all, err := s.ListEvents(id, "")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	for i, rec := range all {
		if rec.Event != events[i] {
			t.Fatalf("event %d: got %+v, want %+v", i, rec.Event, events[i])
		}
	}

	crit, err := s.ListEvents(id, control.EventCritical)
	if err != nil || len(crit) != 1 || crit[0].Junction != "J1" {
		t.Fatalf("filtered ListEvents: %+v %v", crit, err)
	}
}

func TestLogEventUnknownRun(t *testing.T) {
	s := tempStore(t)
	err := s.LogEvent(context.Background(), "nope", control.Event{Kind: control.EventOptimizerRun})
	if err == nil {
		t.Fatal("expected foreign key failure")
	}
}

func TestRunLogRecordsLoopEvents(t *testing.T) {
	s := tempStore(t)
	cfg := config.Default()
	id, _ := s.StartRun("test", cfg)

	sim := traffictest.New(3)
	sim.AddJunction("J1", 2, "a")
	loop := control.NewLoop(cfg, sim, nil, log.New(io.Discard, "", 0))
	loop.Recorder = s.RunLog(id)

	st, err := loop.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.FinishRun(st, StatusCompleted); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	evs, err := s.ListEvents(id, control.EventOptimizerRun)
	if err != nil || len(evs) != 1 {
		t.Fatalf("expected one optimizer event, got %+v %v", evs, err)
	}
	if evs[0].RunID != id || evs[0].Tick != 1 {
		t.Fatalf("unexpected event row %+v", evs[0])
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.StartRun("memory", config.Default()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	runs, err := s.ListRuns(0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: %+v %v", runs, err)
	}
}

// #endregion event-tests
