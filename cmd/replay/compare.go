package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/journal"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/trace"
	"github.com/samber/lo"
)

// #region replay

type replayRun struct {
	cfg      config.Config
	trace    *trace.Trace
	store    *journal.Store // nil in fixture mode
	recorded *journal.Run   // nil when the journal has no row for the trace
	saveID   string         // journal run receiving the replay, if any
	logger   *log.Logger
}

// countingRecorder tallies events by kind and forwards them when next is set.
type countingRecorder struct {
	counts map[control.EventKind]int
	next   control.Recorder
}

func (c *countingRecorder) Record(ctx context.Context, ev control.Event) error {
	c.counts[ev.Kind]++
	if c.next != nil {
		return c.next.Record(ctx, ev)
	}
	return nil
}

// runReplay drives the controller over the trace and compares its counters
// with the recorded run. It returns 1 when any known counter diverges.
func runReplay(ctx context.Context, r replayRun) int {
	player := trace.NewPlayer(r.trace)
	rec := &countingRecorder{counts: make(map[control.EventKind]int)}
	runID := "replay-" + r.trace.RunID
	if r.saveID != "" {
		rec.next = r.store.RunLog(r.saveID)
		runID = r.saveID
	}

	loop := control.NewLoop(r.cfg, player, nil, r.logger)
	loop.Recorder = rec
	st, err := loop.Run(ctx, runID)

	if r.saveID != "" {
		status := journal.StatusCompleted
		switch {
		case errors.Is(err, context.Canceled):
			status = journal.StatusCancelled
		case err != nil:
			status = journal.StatusFailed
		}
		if ferr := r.store.FinishRun(st, status); ferr != nil {
			fmt.Fprintf(os.Stderr, "finish run: %v\n", ferr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}

	var recordedEvents map[control.EventKind]int
	if r.recorded != nil {
		recordedEvents = countEvents(r.store, r.recorded.RunID)
	}
	cmds := player.Commands()

	fmt.Printf("Replay of %s: %d junctions, %d recorded ticks\n\n", r.trace.RunID, len(r.trace.Junctions), r.trace.Ticks)
	fmt.Printf("%-22s| %-10s| %-10s| %s\n", "Counter", "Recorded", "Replayed", "Match")
	fmt.Printf("%-22s+%-11s+%-11s+%s\n", "----------------------", "-----------", "-----------", "------")

	diverge := 0
	row := func(name string, want, got int, known bool) {
		exp, match := "-", "-"
		if known {
			exp, match = fmt.Sprint(want), "OK"
			if want != got {
				match = "DIFF"
				diverge++
			}
		}
		fmt.Printf("%-22s| %-10s| %-10d| %s\n", name, exp, got, match)
	}

	var want control.State
	if r.recorded != nil {
		want = control.State{Step: r.recorded.Steps, Ticks: r.recorded.Ticks, OptimizerRuns: r.recorded.OptimizerRuns}
	}
	row("steps", want.Step, st.Step, r.recorded != nil)
	row("ticks", want.Ticks, st.Ticks, r.recorded != nil)
	row("optimizer runs", want.OptimizerRuns, st.OptimizerRuns, r.recorded != nil)
	for _, k := range []control.EventKind{control.EventCritical, control.EventDrainCapped, control.EventJunctionSkipped} {
		row(string(k), recordedEvents[k], rec.counts[k], recordedEvents != nil)
	}
	row("phase switches", 0, lo.CountBy(cmds, func(c trace.Command) bool { return c.SetPhase }), false)

	fmt.Printf("\nSummary: %d commands, %d diverge\n", len(cmds), diverge)
	if r.saveID != "" {
		fmt.Printf("Replay journaled as run %s\n", r.saveID)
	}
	if diverge > 0 {
		return 1
	}
	return 0
}

func countEvents(store *journal.Store, runID string) map[control.EventKind]int {
	evs, err := store.ListEvents(runID, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "list events: %v\n", err)
		return nil
	}
	return lo.CountValuesBy(evs, func(e journal.EventRecord) control.EventKind { return e.Kind })
}

// #endregion replay
