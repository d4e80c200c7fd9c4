package control

import (
	"context"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region state
// State is the loop's mutable run state, owned by one Run call.
//
// Step and Ticks are different clocks: Step counts control iterations and
// drives the optimizer cadence, Ticks counts every simulated tick including
// those spent in drain waits. Ticks >= Step always holds.
type State struct {
	RunID         string
	Junctions     []traffic.JunctionID
	Step          int
	Ticks         int
	OptimizerRuns int
	Skipped       int // junction visits skipped after ErrInvalidJunction
}

// #endregion state

// #region events

// EventKind classifies a recorded loop event.
type EventKind string

const (
	EventOptimizerRun    EventKind = "optimizer_run"
	EventCritical        EventKind = "critical_congestion"
	EventDrainCapped     EventKind = "drain_cap_exceeded"
	EventJunctionSkipped EventKind = "junction_skipped"
)

// Event is a diagnostic emitted by the loop.
type Event struct {
	Step     int                `json:"step"`
	Tick     int                `json:"tick"`
	Kind     EventKind          `json:"kind"`
	Junction traffic.JunctionID `json:"junction,omitempty"` // empty for loop-wide events
	Detail   string             `json:"detail,omitempty"`
}

// Recorder persists loop events. Record failures are logged, never fatal.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// #endregion events
