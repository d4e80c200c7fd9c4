package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/journal"
	"github.com/samber/lo"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to adaptive_signal.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show one run and its events")
	kind := flag.String("kind", "", "filter events to one kind (with --run)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/adaptive_signal.db [--last N] [--run id [--kind k]] [--json]")
		os.Exit(2)
	}

	store, err := journal.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != "" {
		err = runDetailMode(store, *runID, control.EventKind(*kind), *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(store *journal.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}
	if jsonOut {
		return printJSON(runs)
	}

	fmt.Printf("%-10s  %-10s  %-10s  %8s  %8s  %6s  %10s  %s\n",
		"Run", "Transport", "Status", "Steps", "Ticks", "Optim", "Duration", "Started")
	fmt.Printf("%-10s+-%-10s+-%-10s+-%8s+-%8s+-%6s+-%10s+-%s\n",
		"----------", "----------", "----------", "--------", "--------", "------", "----------", "--------------------")
	for _, r := range runs {
		fmt.Printf("%-10s  %-10s  %-10s  %8d  %8d  %6d  %10s  %s\n",
			shortID(r.RunID), r.Transport, r.Status, r.Steps, r.Ticks, r.OptimizerRuns,
			elapsed(r), r.StartedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run    journal.Run               `json:"run"`
	Counts map[control.EventKind]int `json:"event_counts"`
	Events []journal.EventRecord     `json:"events"`
}

func runDetailMode(store *journal.Store, runID string, kind control.EventKind, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	events, err := store.ListEvents(runID, kind)
	if err != nil {
		return err
	}
	out := detailOutput{
		Run:    run,
		Counts: lo.CountValuesBy(events, func(e journal.EventRecord) control.EventKind { return e.Kind }),
		Events: events,
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:        %s\n", run.RunID)
	fmt.Printf("Transport:  %s\n", run.Transport)
	fmt.Printf("Status:     %s\n", run.Status)
	fmt.Printf("Started:    %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Printf("Duration:   %s\n", elapsed(run))
	fmt.Printf("Steps:      %d (%d ticks, %d drain)\n", run.Steps, run.Ticks, run.Ticks-run.Steps)
	fmt.Printf("Optimizer:  %d runs\n", run.OptimizerRuns)

	c := run.Config
	fmt.Printf("\nTuning:\n")
	fmt.Printf("  population %d, iterations %d, interval %d steps\n", c.PopulationSize, c.MaxIterations, c.OptimizationInterval)
	fmt.Printf("  phase %g-%gs, critical queue %d, drain fraction %g, drain cap %d\n",
		c.MinPhaseDuration, c.MaxPhaseDuration, c.CriticalQueueThreshold, c.DynamicQueueFraction, c.MaxDrainTicks)
	fmt.Printf("  objective %s, seed %d\n", c.Objective, c.Seed)

	fmt.Printf("\nEvents:\n")
	for _, k := range []control.EventKind{control.EventOptimizerRun, control.EventCritical, control.EventDrainCapped, control.EventJunctionSkipped} {
		fmt.Printf("  %-22s %d\n", k, out.Counts[k])
	}
	if len(events) == 0 {
		return nil
	}

	fmt.Printf("\n%6s  %8s  %-20s  %-12s  %s\n", "Step", "Tick", "Kind", "Junction", "Detail")
	for _, e := range events {
		junction := string(e.Junction)
		if junction == "" {
			junction = "-"
		}
		fmt.Printf("%6d  %8d  %-20s  %-12s  %s\n", e.Step, e.Tick, e.Kind, junction, e.Detail)
	}
	return nil
}

// #endregion detail-mode

// #region output

func elapsed(r journal.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
