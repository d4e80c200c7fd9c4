package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/journal"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/simrpc"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/trace"
	"google.golang.org/grpc"
)

// #region main

type options struct {
	dbPath, runID, fixturePath string
	configPath, exportPath     string
	serveAddr                  string
	save, verbose              bool
}

func main() {
	var o options
	flag.StringVar(&o.dbPath, "db", "", "run journal holding the trace (DB mode)")
	flag.StringVar(&o.runID, "run", "", "recorded run to replay (DB mode)")
	flag.StringVar(&o.fixturePath, "fixture", "", "trace fixture JSON (fixture mode)")
	flag.StringVar(&o.configPath, "config", "", "YAML tuning for the replay (the recorded run's tuning when empty)")
	flag.StringVar(&o.exportPath, "export", "", "write the trace as a JSON fixture and exit")
	flag.StringVar(&o.serveAddr, "serve", "", "serve the trace over gRPC on this address instead of replaying")
	flag.BoolVar(&o.save, "save", false, "journal the replay as a new run (DB mode)")
	flag.BoolVar(&o.verbose, "v", false, "print controller decisions")
	flag.Parse()

	dbMode := o.dbPath != "" && o.runID != ""
	if dbMode == (o.fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/adaptive_signal.db --run id [--save]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/trace.json")
		fmt.Fprintln(os.Stderr, "  common: [--config tuning.yaml] [--export out.json] [--serve :50061] [-v]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var exitCode int
	if dbMode {
		exitCode = runDBMode(ctx, o)
	} else {
		exitCode = runFixtureMode(ctx, o)
	}
	stop()
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runDBMode(ctx context.Context, o options) int {
	store, err := journal.Open(o.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	if err := trace.EnsureSchema(store.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	tr, err := trace.Load(store.DB(), o.runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load trace: %v\n", err)
		return 2
	}
	var recorded *journal.Run
	if run, err := store.GetRun(o.runID); err == nil {
		recorded = &run
	}

	cfg, err := replayConfig(o.configPath, recorded)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	switch {
	case o.exportPath != "":
		return runExport(tr, o.exportPath)
	case o.serveAddr != "":
		return runServe(ctx, tr, o.serveAddr)
	}

	var saveID string
	if o.save {
		if saveID, err = store.StartRun("replay", cfg); err != nil {
			fmt.Fprintf(os.Stderr, "start run: %v\n", err)
			return 2
		}
	}
	return runReplay(ctx, replayRun{
		cfg:      cfg,
		trace:    tr,
		store:    store,
		recorded: recorded,
		saveID:   saveID,
		logger:   replayLogger(o.verbose),
	})
}

func runFixtureMode(ctx context.Context, o options) int {
	tr, err := trace.ReadFile(o.fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	cfg, err := replayConfig(o.configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	switch {
	case o.exportPath != "":
		return runExport(tr, o.exportPath)
	case o.serveAddr != "":
		return runServe(ctx, tr, o.serveAddr)
	}
	return runReplay(ctx, replayRun{cfg: cfg, trace: tr, logger: replayLogger(o.verbose)})
}

func replayConfig(path string, recorded *journal.Run) (config.Config, error) {
	if path == "" && recorded != nil {
		return recorded.Config, nil
	}
	return config.Load(path)
}

func replayLogger(verbose bool) *log.Logger {
	if verbose {
		return log.Default()
	}
	return log.New(io.Discard, "", 0)
}

// #endregion modes

// #region export
func runExport(tr *trace.Trace, path string) int {
	if err := tr.WriteFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote trace of run %s (%d junctions, %d ticks) to %s\n", tr.RunID, len(tr.Junctions), tr.Ticks, path)
	return 0
}

// #endregion export

// #region serve
// runServe exposes a fresh player over gRPC so a controller can be pointed
// at a recorded run with -transport grpc.
func runServe(ctx context.Context, tr *trace.Trace, addr string) int {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", addr, err)
		return 1
	}
	srv := grpc.NewServer()
	simrpc.RegisterSimulationServer(srv, trace.NewPlayer(tr))

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	log.Printf("Serving trace of run %s on %s", tr.RunID, lis.Addr())
	if err := srv.Serve(lis); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}

// #endregion serve
