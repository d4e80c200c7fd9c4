package trace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/samber/lo"
)

// #region types
// Command is a signal command received during playback.
type Command struct {
	Tick     int                `json:"tick"`
	Junction traffic.JunctionID `json:"junction"`
	Duration float64            `json:"duration,omitempty"`
	Phase    int                `json:"phase"`
	SetPhase bool               `json:"set_phase"`
}

// #endregion types

// #region player
// Player is a Simulation that replays a Trace. Lane state follows the
// recording regardless of the commands it receives; phases follow SetPhase.
//
// Vehicles are synthesised per tick as "<lane>#<n>": the first Stopped of
// them stand still and share the lane's waiting time.
type Player struct {
	mu       sync.Mutex
	tr       *Trace
	tick     int
	junction map[traffic.JunctionID]*Junction
	phase    map[traffic.JunctionID]int
	lanes    map[traffic.LaneID]bool
	commands []Command
}

// NewPlayer starts playback of tr at tick 0.
func NewPlayer(tr *Trace) *Player {
	p := &Player{
		tr:       tr,
		junction: make(map[traffic.JunctionID]*Junction, len(tr.Junctions)),
		phase:    make(map[traffic.JunctionID]int, len(tr.Junctions)),
		lanes:    make(map[traffic.LaneID]bool),
	}
	for i := range tr.Junctions {
		j := &tr.Junctions[i]
		p.junction[j.ID] = j
		p.phase[j.ID] = j.InitialPhase
		for _, l := range j.Lanes {
			p.lanes[l] = true
		}
	}
	for l := range tr.Samples {
		p.lanes[l] = true
	}
	return p
}

// Commands returns the commands received so far.
func (p *Player) Commands() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Command(nil), p.commands...)
}

// Tick is the current playback tick.
func (p *Player) Tick() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tick
}

func (p *Player) lookup(id traffic.JunctionID) (*Junction, error) {
	j, ok := p.junction[id]
	if !ok {
		return nil, fmt.Errorf("junction %s: %w", id, traffic.ErrInvalidJunction)
	}
	return j, nil
}

// sampleAt returns the lane at the current tick, holding the last sample
// once the recording runs out.
func (p *Player) sampleAt(lane traffic.LaneID) (Sample, error) {
	if !p.lanes[lane] {
		return Sample{}, fmt.Errorf("lane %s: %w", lane, traffic.ErrInvalidJunction)
	}
	seq := p.tr.Samples[lane]
	switch {
	case len(seq) == 0:
		return Sample{}, nil
	case p.tick < len(seq):
		return seq[p.tick], nil
	default:
		return seq[len(seq)-1], nil
	}
}

// #endregion player

// #region vehicles
func vehicleID(lane traffic.LaneID, n int) traffic.VehicleID {
	return traffic.VehicleID(string(lane) + "#" + strconv.Itoa(n))
}

func (p *Player) vehicle(id traffic.VehicleID) (Sample, int, error) {
	s := string(id)
	cut := strings.LastIndexByte(s, '#')
	if cut < 0 {
		return Sample{}, 0, fmt.Errorf("vehicle %s: %w", id, traffic.ErrInvalidJunction)
	}
	n, err := strconv.Atoi(s[cut+1:])
	if err != nil {
		return Sample{}, 0, fmt.Errorf("vehicle %s: %w", id, traffic.ErrInvalidJunction)
	}
	smp, err := p.sampleAt(traffic.LaneID(s[:cut]))
	if err != nil || n < 0 || n >= max(smp.Vehicles, smp.Stopped) {
		return Sample{}, 0, fmt.Errorf("vehicle %s: %w", id, traffic.ErrInvalidJunction)
	}
	return smp, n, nil
}

// #endregion vehicles

// #region provider

func (p *Player) JunctionIDs(_ context.Context) ([]traffic.JunctionID, error) {
	return lo.Map(p.tr.Junctions, func(j Junction, _ int) traffic.JunctionID { return j.ID }), nil
}

func (p *Player) ControlledLanes(_ context.Context, id traffic.JunctionID) ([]traffic.LaneID, error) {
	j, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]traffic.LaneID(nil), j.Lanes...), nil
}

func (p *Player) LaneVehicleIDs(_ context.Context, lane traffic.LaneID) ([]traffic.VehicleID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	smp, err := p.sampleAt(lane)
	if err != nil {
		return nil, err
	}
	out := make([]traffic.VehicleID, max(smp.Vehicles, smp.Stopped))
	for i := range out {
		out[i] = vehicleID(lane, i)
	}
	return out, nil
}

func (p *Player) VehicleSpeed(_ context.Context, id traffic.VehicleID) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	smp, n, err := p.vehicle(id)
	if err != nil {
		return 0, err
	}
	if n < smp.Stopped {
		return 0, nil
	}
	return 1, nil
}

func (p *Player) VehicleWaitingTime(_ context.Context, id traffic.VehicleID) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	smp, n, err := p.vehicle(id)
	if err != nil {
		return 0, err
	}
	switch {
	case smp.Stopped > 0 && n < smp.Stopped:
		return smp.Waiting / float64(smp.Stopped), nil
	case smp.Stopped == 0:
		return smp.Waiting / float64(smp.Vehicles), nil
	default:
		return 0, nil
	}
}

func (p *Player) LaneVehicleCount(_ context.Context, lane traffic.LaneID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	smp, err := p.sampleAt(lane)
	return smp.Vehicles, err
}

func (p *Player) CurrentPhase(_ context.Context, id traffic.JunctionID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.lookup(id); err != nil {
		return 0, err
	}
	return p.phase[id], nil
}

func (p *Player) PhaseCount(_ context.Context, id traffic.JunctionID) (int, error) {
	j, err := p.lookup(id)
	if err != nil {
		return 0, err
	}
	return j.PhaseCount, nil
}

func (p *Player) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	return nil
}

func (p *Player) MinExpectedVehicles(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr.Ticks - p.tick, nil
}

// #endregion provider

// #region sink

func (p *Player) SetPhaseDuration(_ context.Context, id traffic.JunctionID, seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.lookup(id); err != nil {
		return err
	}
	p.commands = append(p.commands, Command{Tick: p.tick, Junction: id, Duration: seconds})
	return nil
}

func (p *Player) SetPhase(_ context.Context, id traffic.JunctionID, phase int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, err := p.lookup(id)
	if err != nil {
		return err
	}
	if phase < 0 || phase >= j.PhaseCount {
		return fmt.Errorf("junction %s: phase %d out of range [0,%d)", id, phase, j.PhaseCount)
	}
	p.phase[id] = phase
	p.commands = append(p.commands, Command{Tick: p.tick, Junction: id, Phase: phase, SetPhase: true})
	return nil
}

// #endregion sink
