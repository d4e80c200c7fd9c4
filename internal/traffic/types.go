package traffic

import (
	"context"
	"errors"
)

// #region ids
// JunctionID identifies a signal-controlled junction.
type JunctionID string

// LaneID identifies a lane controlled by a junction's signal.
type LaneID string

// VehicleID identifies a vehicle currently in the network.
type VehicleID string

// #endregion ids

// #region errors
var (
	// ErrProviderUnavailable means the simulation session cannot be reached or
	// terminated unexpectedly. Fatal to the control loop.
	ErrProviderUnavailable = errors.New("traffic: provider unavailable")

	// ErrInvalidJunction means a junction, lane or vehicle identifier is no
	// longer known to the provider.
	ErrInvalidJunction = errors.New("traffic: invalid junction reference")
)

// #endregion errors

// #region lane
// Lane is one observation of a controlled lane at the latest tick.
type Lane struct {
	ID      LaneID
	Queue   int     // stopped vehicles
	Waiting float64 // summed accumulated wait of every vehicle on the lane
}

// #endregion lane

// #region interfaces

// StateProvider is the read side of the simulation boundary.
type StateProvider interface {
	JunctionIDs(ctx context.Context) ([]JunctionID, error)
	ControlledLanes(ctx context.Context, junction JunctionID) ([]LaneID, error)
	LaneVehicleIDs(ctx context.Context, lane LaneID) ([]VehicleID, error)
	VehicleSpeed(ctx context.Context, vehicle VehicleID) (float64, error)
	VehicleWaitingTime(ctx context.Context, vehicle VehicleID) (float64, error)
	// LaneVehicleCount is the last-tick vehicle count, used as the queue length proxy.
	LaneVehicleCount(ctx context.Context, lane LaneID) (int, error)
	CurrentPhase(ctx context.Context, junction JunctionID) (int, error)
	PhaseCount(ctx context.Context, junction JunctionID) (int, error)
	// Step advances simulated time by one tick and blocks until it is done.
	Step(ctx context.Context) error
	// MinExpectedVehicles reports how many vehicles are still expected.
	// Zero or less means the run is over.
	MinExpectedVehicles(ctx context.Context) (int, error)
}

// CommandSink accepts signal commands per junction.
type CommandSink interface {
	SetPhaseDuration(ctx context.Context, junction JunctionID, seconds float64) error
	SetPhase(ctx context.Context, junction JunctionID, phase int) error
}

// Simulation is both sides of the boundary, which is what every transport provides.
type Simulation interface {
	StateProvider
	CommandSink
}

// #endregion interfaces
