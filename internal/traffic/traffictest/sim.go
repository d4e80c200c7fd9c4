// Package traffictest provides a scripted in-memory traffic.Simulation for tests.
package traffictest

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region types

// Junction is the scripted state of one junction.
type Junction struct {
	Lanes      []traffic.LaneID
	Phase      int
	PhaseCount int
}

// Vehicle is a scripted vehicle parked on a lane.
type Vehicle struct {
	ID      traffic.VehicleID
	Speed   float64
	Waiting float64
}

// Command records one call into the command sink.
type Command struct {
	Kind     string // "duration" | "phase"
	Junction traffic.JunctionID
	Duration float64
	Phase    int
	Tick     int
}

// #endregion types

// #region sim

// Sim is a deterministic Simulation. Lane counts are scripted per tick and
// the last scripted value repeats once the script runs out.
type Sim struct {
	Order     []traffic.JunctionID
	Junctions map[traffic.JunctionID]*Junction
	Counts    map[traffic.LaneID][]int
	Vehicles  map[traffic.LaneID][]Vehicle

	// Horizon is the tick at which MinExpectedVehicles drops to zero.
	Horizon int
	Tick    int

	Commands []Command

	StepErr  error // returned by every Step when set
	CountErr error // returned by every LaneVehicleCount when set
}

// New returns an empty Sim that runs for horizon ticks.
func New(horizon int) *Sim {
	return &Sim{
		Junctions: make(map[traffic.JunctionID]*Junction),
		Counts:    make(map[traffic.LaneID][]int),
		Vehicles:  make(map[traffic.LaneID][]Vehicle),
		Horizon:   horizon,
	}
}

// AddJunction registers a junction with its controlled lanes.
func (s *Sim) AddJunction(id traffic.JunctionID, phaseCount int, lanes ...traffic.LaneID) *Junction {
	j := &Junction{Lanes: lanes, PhaseCount: phaseCount}
	s.Junctions[id] = j
	s.Order = append(s.Order, id)
	return j
}

// RemoveJunction makes every later reference to id fail with ErrInvalidJunction.
func (s *Sim) RemoveJunction(id traffic.JunctionID) {
	delete(s.Junctions, id)
}

// SetCounts scripts a lane's vehicle count for ticks 0, 1, 2, ...
func (s *Sim) SetCounts(lane traffic.LaneID, counts ...int) {
	s.Counts[lane] = counts
}

// Durations returns every duration commanded for a junction, in order.
func (s *Sim) Durations(id traffic.JunctionID) []Command {
	return s.filter("duration", id)
}

// Phases returns every phase commanded for a junction, in order.
func (s *Sim) Phases(id traffic.JunctionID) []Command {
	return s.filter("phase", id)
}

func (s *Sim) filter(kind string, id traffic.JunctionID) []Command {
	var out []Command
	for _, c := range s.Commands {
		if c.Kind == kind && c.Junction == id {
			out = append(out, c)
		}
	}
	return out
}

func (s *Sim) junction(id traffic.JunctionID) (*Junction, error) {
	j, ok := s.Junctions[id]
	if !ok {
		return nil, fmt.Errorf("junction %s: %w", id, traffic.ErrInvalidJunction)
	}
	return j, nil
}

// #endregion sim

// #region provider

func (s *Sim) JunctionIDs(_ context.Context) ([]traffic.JunctionID, error) {
	out := make([]traffic.JunctionID, 0, len(s.Order))
	for _, id := range s.Order {
		if _, ok := s.Junctions[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Sim) ControlledLanes(_ context.Context, id traffic.JunctionID) ([]traffic.LaneID, error) {
	j, err := s.junction(id)
	if err != nil {
		return nil, err
	}
	return append([]traffic.LaneID(nil), j.Lanes...), nil
}

func (s *Sim) LaneVehicleIDs(_ context.Context, lane traffic.LaneID) ([]traffic.VehicleID, error) {
	vs := s.Vehicles[lane]
	out := make([]traffic.VehicleID, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out, nil
}

func (s *Sim) vehicle(id traffic.VehicleID) (Vehicle, error) {
	for _, vs := range s.Vehicles {
		for _, v := range vs {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return Vehicle{}, fmt.Errorf("vehicle %s: %w", id, traffic.ErrInvalidJunction)
}

func (s *Sim) VehicleSpeed(_ context.Context, id traffic.VehicleID) (float64, error) {
	v, err := s.vehicle(id)
	return v.Speed, err
}

func (s *Sim) VehicleWaitingTime(_ context.Context, id traffic.VehicleID) (float64, error) {
	v, err := s.vehicle(id)
	return v.Waiting, err
}

func (s *Sim) LaneVehicleCount(_ context.Context, lane traffic.LaneID) (int, error) {
	if s.CountErr != nil {
		return 0, s.CountErr
	}
	seq := s.Counts[lane]
	if len(seq) == 0 {
		return 0, nil
	}
	if s.Tick < len(seq) {
		return seq[s.Tick], nil
	}
	return seq[len(seq)-1], nil
}

func (s *Sim) CurrentPhase(_ context.Context, id traffic.JunctionID) (int, error) {
	j, err := s.junction(id)
	if err != nil {
		return 0, err
	}
	return j.Phase, nil
}

func (s *Sim) PhaseCount(_ context.Context, id traffic.JunctionID) (int, error) {
	j, err := s.junction(id)
	if err != nil {
		return 0, err
	}
	return j.PhaseCount, nil
}

func (s *Sim) Step(_ context.Context) error {
	if s.StepErr != nil {
		return s.StepErr
	}
	s.Tick++
	return nil
}

func (s *Sim) MinExpectedVehicles(_ context.Context) (int, error) {
	return s.Horizon - s.Tick, nil
}

// #endregion provider

// #region sink

func (s *Sim) SetPhaseDuration(_ context.Context, id traffic.JunctionID, seconds float64) error {
	if _, err := s.junction(id); err != nil {
		return err
	}
	s.Commands = append(s.Commands, Command{Kind: "duration", Junction: id, Duration: seconds, Tick: s.Tick})
	return nil
}

func (s *Sim) SetPhase(_ context.Context, id traffic.JunctionID, phase int) error {
	j, err := s.junction(id)
	if err != nil {
		return err
	}
	j.Phase = phase
	s.Commands = append(s.Commands, Command{Kind: "phase", Junction: id, Phase: phase, Tick: s.Tick})
	return nil
}

// #endregion sink
