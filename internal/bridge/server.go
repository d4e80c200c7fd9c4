package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/vmihailenco/msgpack/v5"
)

// #region serve
// Serve answers bridge requests on conn from sim until the peer sends stop,
// disconnects, or ctx ends. It lets a Go-side simulation (such as a trace
// replay) stand in for the SUMO bridge.
func Serve(ctx context.Context, conn net.Conn, sim traffic.Simulation) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var req Request
		if err := readMessage(conn, &req); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("serve: read request: %w", err)
		}
		if req.Endpoint == EndpointStop {
			return nil
		}

		resp := dispatch(ctx, sim, req)
		if err := writeMessage(conn, resp); err != nil {
			return fmt.Errorf("serve: write %s response: %w", req.Endpoint, err)
		}
	}
}

// #endregion serve

// #region dispatch
func dispatch(ctx context.Context, sim traffic.Simulation, req Request) Response {
	p := req.Params
	var (
		result any
		err    error
		code   = CodeUnknownJunction
	)

	switch req.Endpoint {
	case EndpointJunctionIDs:
		result, err = sim.JunctionIDs(ctx)
	case EndpointControlledLanes:
		result, err = sim.ControlledLanes(ctx, traffic.JunctionID(p.Junction))
	case EndpointLaneVehicleIDs:
		code = CodeUnknownLane
		result, err = sim.LaneVehicleIDs(ctx, traffic.LaneID(p.Lane))
	case EndpointVehicleSpeed:
		code = CodeUnknownVehicle
		result, err = sim.VehicleSpeed(ctx, traffic.VehicleID(p.Vehicle))
	case EndpointVehicleWaitingTime:
		code = CodeUnknownVehicle
		result, err = sim.VehicleWaitingTime(ctx, traffic.VehicleID(p.Vehicle))
	case EndpointLaneVehicleCount:
		code = CodeUnknownLane
		result, err = sim.LaneVehicleCount(ctx, traffic.LaneID(p.Lane))
	case EndpointCurrentPhase:
		result, err = sim.CurrentPhase(ctx, traffic.JunctionID(p.Junction))
	case EndpointPhaseCount:
		result, err = sim.PhaseCount(ctx, traffic.JunctionID(p.Junction))
	case EndpointStep:
		err = sim.Step(ctx)
	case EndpointMinExpected:
		result, err = sim.MinExpectedVehicles(ctx)
	case EndpointSetPhaseDuration:
		err = sim.SetPhaseDuration(ctx, traffic.JunctionID(p.Junction), p.Duration)
	case EndpointSetPhase:
		err = sim.SetPhase(ctx, traffic.JunctionID(p.Junction), p.Phase)
	default:
		return Response{Code: CodeBadRequest, Error: fmt.Sprintf("unknown endpoint %q", req.Endpoint)}
	}

	if err != nil {
		if !errors.Is(err, traffic.ErrInvalidJunction) {
			code = CodeInternal
		}
		return Response{Code: code, Error: err.Error()}
	}
	if result == nil {
		return Response{OK: true}
	}
	raw, err := msgpack.Marshal(result)
	if err != nil {
		return Response{Code: CodeInternal, Error: fmt.Sprintf("encode result: %v", err)}
	}
	return Response{OK: true, Result: raw}
}

// #endregion dispatch
