package simrpc

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client reaches a simulation over gRPC.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// Dial creates a client for the simulation service at addr. The connection
// is established lazily, so an unreachable server surfaces on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region call
func (c *Client) call(ctx context.Context, method string, args map[string]any) (*structpb.Value, error) {
	req, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("simrpc %s: encode request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return nil, fromStatus(ctx, method, err)
	}
	return resp.GetFields()[fieldValue], nil
}

func (c *Client) strings(ctx context.Context, method string, args map[string]any) ([]string, error) {
	v, err := c.call(ctx, method, args)
	if err != nil {
		return nil, err
	}
	vals := v.GetListValue().GetValues()
	out := make([]string, len(vals))
	for i, s := range vals {
		out[i] = s.GetStringValue()
	}
	return out, nil
}

func (c *Client) number(ctx context.Context, method string, args map[string]any) (float64, error) {
	v, err := c.call(ctx, method, args)
	if err != nil {
		return 0, err
	}
	return v.GetNumberValue(), nil
}

func convert[T ~string](in []string) []T {
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = T(s)
	}
	return out
}

// #endregion call

// #region provider

func (c *Client) JunctionIDs(ctx context.Context) ([]traffic.JunctionID, error) {
	ids, err := c.strings(ctx, MethodJunctionIDs, nil)
	return convert[traffic.JunctionID](ids), err
}

func (c *Client) ControlledLanes(ctx context.Context, junction traffic.JunctionID) ([]traffic.LaneID, error) {
	lanes, err := c.strings(ctx, MethodControlledLanes, map[string]any{fieldJunction: string(junction)})
	return convert[traffic.LaneID](lanes), err
}

func (c *Client) LaneVehicleIDs(ctx context.Context, lane traffic.LaneID) ([]traffic.VehicleID, error) {
	ids, err := c.strings(ctx, MethodLaneVehicleIDs, map[string]any{fieldLane: string(lane)})
	return convert[traffic.VehicleID](ids), err
}

func (c *Client) VehicleSpeed(ctx context.Context, vehicle traffic.VehicleID) (float64, error) {
	return c.number(ctx, MethodVehicleSpeed, map[string]any{fieldVehicle: string(vehicle)})
}

func (c *Client) VehicleWaitingTime(ctx context.Context, vehicle traffic.VehicleID) (float64, error) {
	return c.number(ctx, MethodVehicleWaitingTime, map[string]any{fieldVehicle: string(vehicle)})
}

func (c *Client) LaneVehicleCount(ctx context.Context, lane traffic.LaneID) (int, error) {
	n, err := c.number(ctx, MethodLaneVehicleCount, map[string]any{fieldLane: string(lane)})
	return int(n), err
}

func (c *Client) CurrentPhase(ctx context.Context, junction traffic.JunctionID) (int, error) {
	p, err := c.number(ctx, MethodCurrentPhase, map[string]any{fieldJunction: string(junction)})
	return int(p), err
}

func (c *Client) PhaseCount(ctx context.Context, junction traffic.JunctionID) (int, error) {
	n, err := c.number(ctx, MethodPhaseCount, map[string]any{fieldJunction: string(junction)})
	return int(n), err
}

func (c *Client) Step(ctx context.Context) error {
	_, err := c.call(ctx, MethodStep, nil)
	return err
}

func (c *Client) MinExpectedVehicles(ctx context.Context) (int, error) {
	n, err := c.number(ctx, MethodMinExpected, nil)
	return int(n), err
}

// #endregion provider

// #region sink

func (c *Client) SetPhaseDuration(ctx context.Context, junction traffic.JunctionID, seconds float64) error {
	_, err := c.call(ctx, MethodSetPhaseDuration, map[string]any{fieldJunction: string(junction), fieldDuration: seconds})
	return err
}

func (c *Client) SetPhase(ctx context.Context, junction traffic.JunctionID, phase int) error {
	_, err := c.call(ctx, MethodSetPhase, map[string]any{fieldJunction: string(junction), fieldPhase: phase})
	return err
}

// #endregion sink
