package simrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region names
const ServiceName = "trafficsim.v1.Simulation"

const (
	MethodJunctionIDs        = "JunctionIDs"
	MethodControlledLanes    = "ControlledLanes"
	MethodLaneVehicleIDs     = "LaneVehicleIDs"
	MethodVehicleSpeed       = "VehicleSpeed"
	MethodVehicleWaitingTime = "VehicleWaitingTime"
	MethodLaneVehicleCount   = "LaneVehicleCount"
	MethodCurrentPhase       = "CurrentPhase"
	MethodPhaseCount         = "PhaseCount"
	MethodStep               = "Step"
	MethodMinExpected        = "MinExpectedVehicles"
	MethodSetPhaseDuration   = "SetPhaseDuration"
	MethodSetPhase           = "SetPhase"
)

// Request and response field names.
const (
	fieldJunction = "junction"
	fieldLane     = "lane"
	fieldVehicle  = "vehicle"
	fieldDuration = "duration"
	fieldPhase    = "phase"
	fieldValue    = "value"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// #endregion names

// #region service-desc

// unaryFunc answers one call against sim. A nil result means an empty response.
type unaryFunc func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error)

var handlers = map[string]unaryFunc{
	MethodJunctionIDs: func(ctx context.Context, sim traffic.Simulation, _ *structpb.Struct) (any, error) {
		ids, err := sim.JunctionIDs(ctx)
		return stringList(ids), err
	},
	MethodControlledLanes: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		lanes, err := sim.ControlledLanes(ctx, traffic.JunctionID(str(req, fieldJunction)))
		return stringList(lanes), err
	},
	MethodLaneVehicleIDs: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		ids, err := sim.LaneVehicleIDs(ctx, traffic.LaneID(str(req, fieldLane)))
		return stringList(ids), err
	},
	MethodVehicleSpeed: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return sim.VehicleSpeed(ctx, traffic.VehicleID(str(req, fieldVehicle)))
	},
	MethodVehicleWaitingTime: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return sim.VehicleWaitingTime(ctx, traffic.VehicleID(str(req, fieldVehicle)))
	},
	MethodLaneVehicleCount: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return sim.LaneVehicleCount(ctx, traffic.LaneID(str(req, fieldLane)))
	},
	MethodCurrentPhase: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return sim.CurrentPhase(ctx, traffic.JunctionID(str(req, fieldJunction)))
	},
	MethodPhaseCount: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return sim.PhaseCount(ctx, traffic.JunctionID(str(req, fieldJunction)))
	},
	MethodStep: func(ctx context.Context, sim traffic.Simulation, _ *structpb.Struct) (any, error) {
		return nil, sim.Step(ctx)
	},
	MethodMinExpected: func(ctx context.Context, sim traffic.Simulation, _ *structpb.Struct) (any, error) {
		return sim.MinExpectedVehicles(ctx)
	},
	MethodSetPhaseDuration: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return nil, sim.SetPhaseDuration(ctx, traffic.JunctionID(str(req, fieldJunction)), num(req, fieldDuration))
	},
	MethodSetPhase: func(ctx context.Context, sim traffic.Simulation, req *structpb.Struct) (any, error) {
		return nil, sim.SetPhase(ctx, traffic.JunctionID(str(req, fieldJunction)), int(num(req, fieldPhase)))
	},
}

func methodHandler(name string, fn unaryFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, in any) (any, error) {
			return serve(ctx, srv.(traffic.Simulation), in.(*structpb.Struct), fn)
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, req, info, call)
	}
}

func serve(ctx context.Context, sim traffic.Simulation, req *structpb.Struct, fn unaryFunc) (*structpb.Struct, error) {
	result, err := fn(ctx, sim, req)
	if err != nil {
		return nil, toStatus(err)
	}
	if result == nil {
		return &structpb.Struct{}, nil
	}
	out, err := structpb.NewStruct(map[string]any{fieldValue: result})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*traffic.Simulation)(nil),
		Metadata:    "trafficsim/v1/simulation.proto",
	}
	for name, fn := range handlers {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: name, Handler: methodHandler(name, fn)})
	}
	return desc
}

// RegisterSimulationServer exposes sim as the Simulation service on s.
func RegisterSimulationServer(s grpc.ServiceRegistrar, sim traffic.Simulation) {
	s.RegisterService(serviceDesc(), sim)
}

// #endregion service-desc

// #region errors
func toStatus(err error) error {
	switch {
	case errors.Is(err, traffic.ErrInvalidJunction):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, traffic.ErrProviderUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func fromStatus(ctx context.Context, method string, err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("simrpc %s: %s: %w", method, st.Message(), traffic.ErrInvalidJunction)
	case codes.Canceled, codes.DeadlineExceeded:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("simrpc %s: %w", method, ctxErr)
		}
		return fmt.Errorf("simrpc %s: %s: %w", method, st.Message(), traffic.ErrProviderUnavailable)
	case codes.Unavailable:
		return fmt.Errorf("simrpc %s: %s: %w", method, st.Message(), traffic.ErrProviderUnavailable)
	default:
		return fmt.Errorf("simrpc %s: %s (%s)", method, st.Message(), st.Code())
	}
}

// #endregion errors

// #region values

// stringList converts typed ids into the []any structpb accepts.
func stringList[T ~string](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

// #endregion values
