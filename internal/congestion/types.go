package congestion

import "github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"

// #region decision
// Decision describes what the controller did at one junction in one call.
type Decision struct {
	Junction   traffic.JunctionID
	TotalQueue int
	MaxLane    traffic.LaneID
	MaxQueue   int
	Threshold  float64 // drain target, MaxQueue * DynamicQueueFraction
	GreenTime  float64 // ratio-based green time before any override
	Committed  float64 // duration actually sent to the sink
	Critical   bool    // MaxQueue exceeded the critical threshold

	DrainTicks  int  // extra simulation ticks consumed waiting for MaxLane
	DrainCapped bool // the drain wait hit MaxDrainTicks

	PrevPhase int
	NewPhase  int

	// Idle is set when the junction had no queued vehicles and nothing was commanded.
	Idle bool
}

// #endregion decision
