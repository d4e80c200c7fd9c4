package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/journal"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/trace"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("SIGNAL_CONFIG", ""), "YAML tuning file (defaults when empty)")
	transport := flag.String("transport", envOr("SIM_TRANSPORT", "bridge"), "simulation transport: bridge | grpc")
	network := flag.String("network", envOr("SIM_NETWORK", "unix"), "bridge network: unix | tcp")
	addr := flag.String("addr", envOr("SIM_ADDR", ""), "simulation address (socket path or host:port)")
	dbPath := flag.String("db", envOr("SIGNAL_DB", "adaptive_signal.db"), "run journal database")
	record := flag.Bool("record", false, "record a replayable trace of the run")
	seed := flag.Uint64("seed", 0, "optimizer seed (0 keeps the config value)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *addr == "" {
		*addr = defaultAddr(*transport, *network)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, *transport, *network, *addr, *dbPath, *record)
	stop()
	os.Exit(code)
}

// #endregion main

// #region run
func run(ctx context.Context, cfg config.Config, transport, network, addr, dbPath string, record bool) int {
	store, err := journal.Open(dbPath)
	if err != nil {
		log.Printf("failed to open journal: %v", err)
		return 1
	}
	defer store.Close()

	sim, closeSim, err := connect(ctx, transport, network, addr)
	if err != nil {
		log.Printf("failed to connect to simulation: %v", err)
		return 1
	}
	defer closeSim()

	runID, err := store.StartRun(transport, cfg)
	if err != nil {
		log.Printf("start run: %v", err)
		return 1
	}
	log.Printf("Run %s on %s %s (journal %s)", runID, transport, addr, dbPath)

	if record {
		rec, err := trace.NewRecorder(ctx, store.DB(), runID, sim)
		if err != nil {
			log.Printf("trace: %v", err)
			store.FinishRun(control.State{RunID: runID}, journal.StatusFailed)
			return 1
		}
		sim = rec
	}

	loop := control.NewLoop(cfg, sim, nil, log.Default())
	loop.Recorder = store.RunLog(runID)
	st, runErr := loop.Run(ctx, runID)

	status := runStatus(runErr)
	if err := store.FinishRun(st, status); err != nil {
		log.Printf("finish run: %v", err)
	}
	log.Printf("Run %s %s: %d steps, %d ticks, %d optimizer runs, %d skips",
		runID, status, st.Step, st.Ticks, st.OptimizerRuns, st.Skipped)
	if status == journal.StatusFailed {
		log.Printf("control loop: %v", runErr)
		return 1
	}
	return 0
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return journal.StatusCompleted
	case errors.Is(err, context.Canceled):
		return journal.StatusCancelled
	default:
		return journal.StatusFailed
	}
}

// #endregion run

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultAddr(transport, network string) string {
	switch {
	case transport == "grpc":
		return "localhost:50061"
	case network == "tcp":
		return "localhost:50060"
	default:
		return "/tmp/sumo-bridge.sock"
	}
}

// #endregion helpers
