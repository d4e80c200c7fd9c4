package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/vmihailenco/msgpack/v5"
)

// #region client-struct
// Client speaks the bridge protocol over one connection. Calls are
// serialised; after a transport failure every later call fails fast.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	broken error
}

// #endregion client-struct

// #region constructor
// Dial connects to a bridge listening on network ("unix" or "tcp") at addr.
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s %s: %v: %w", network, addr, err, traffic.ErrProviderUnavailable)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// #endregion constructor

// #region close
// Close asks the bridge to stop and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.conn.SetDeadline(time.Now().Add(time.Second))
		writeMessage(c.conn, Request{Endpoint: EndpointStop})
		c.broken = errors.New("client closed")
	}
	return c.conn.Close()
}

// #endregion close

// #region call
func (c *Client) call(ctx context.Context, endpoint string, params Params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return fmt.Errorf("bridge %s: %v: %w", endpoint, c.broken, traffic.ErrProviderUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, hasDeadline := ctx.Deadline()
	c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Now()) })
	defer stop()

	var resp Response
	err := writeMessage(c.conn, Request{Endpoint: endpoint, Params: params})
	if err == nil {
		err = readMessage(c.conn, &resp)
	}
	if err != nil {
		// the stream position is unknown now
		c.broken = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("bridge %s: %w", endpoint, ctxErr)
		}
		if hasDeadline && errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("bridge %s: %w", endpoint, context.DeadlineExceeded)
		}
		return fmt.Errorf("bridge %s: %v: %w", endpoint, err, traffic.ErrProviderUnavailable)
	}

	if !resp.OK {
		return remoteError(endpoint, resp)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("bridge %s: decode result: %w", endpoint, err)
	}
	return nil
}

func remoteError(endpoint string, resp Response) error {
	switch resp.Code {
	case CodeUnknownJunction, CodeUnknownLane, CodeUnknownVehicle:
		return fmt.Errorf("bridge %s: %s: %w", endpoint, resp.Error, traffic.ErrInvalidJunction)
	default:
		return fmt.Errorf("bridge %s: %s (%s)", endpoint, resp.Error, resp.Code)
	}
}

// #endregion call

// #region provider

func (c *Client) JunctionIDs(ctx context.Context) ([]traffic.JunctionID, error) {
	var ids []traffic.JunctionID
	err := c.call(ctx, EndpointJunctionIDs, Params{}, &ids)
	return ids, err
}

func (c *Client) ControlledLanes(ctx context.Context, junction traffic.JunctionID) ([]traffic.LaneID, error) {
	var lanes []traffic.LaneID
	err := c.call(ctx, EndpointControlledLanes, Params{Junction: string(junction)}, &lanes)
	return lanes, err
}

func (c *Client) LaneVehicleIDs(ctx context.Context, lane traffic.LaneID) ([]traffic.VehicleID, error) {
	var ids []traffic.VehicleID
	err := c.call(ctx, EndpointLaneVehicleIDs, Params{Lane: string(lane)}, &ids)
	return ids, err
}

func (c *Client) VehicleSpeed(ctx context.Context, vehicle traffic.VehicleID) (float64, error) {
	var v float64
	err := c.call(ctx, EndpointVehicleSpeed, Params{Vehicle: string(vehicle)}, &v)
	return v, err
}

func (c *Client) VehicleWaitingTime(ctx context.Context, vehicle traffic.VehicleID) (float64, error) {
	var v float64
	err := c.call(ctx, EndpointVehicleWaitingTime, Params{Vehicle: string(vehicle)}, &v)
	return v, err
}

func (c *Client) LaneVehicleCount(ctx context.Context, lane traffic.LaneID) (int, error) {
	var n int
	err := c.call(ctx, EndpointLaneVehicleCount, Params{Lane: string(lane)}, &n)
	return n, err
}

func (c *Client) CurrentPhase(ctx context.Context, junction traffic.JunctionID) (int, error) {
	var p int
	err := c.call(ctx, EndpointCurrentPhase, Params{Junction: string(junction)}, &p)
	return p, err
}

func (c *Client) PhaseCount(ctx context.Context, junction traffic.JunctionID) (int, error) {
	var n int
	err := c.call(ctx, EndpointPhaseCount, Params{Junction: string(junction)}, &n)
	return n, err
}

func (c *Client) Step(ctx context.Context) error {
	return c.call(ctx, EndpointStep, Params{}, nil)
}

func (c *Client) MinExpectedVehicles(ctx context.Context) (int, error) {
	var n int
	err := c.call(ctx, EndpointMinExpected, Params{}, &n)
	return n, err
}

// #endregion provider

// #region sink

func (c *Client) SetPhaseDuration(ctx context.Context, junction traffic.JunctionID, seconds float64) error {
	return c.call(ctx, EndpointSetPhaseDuration, Params{Junction: string(junction), Duration: seconds}, nil)
}

func (c *Client) SetPhase(ctx context.Context, junction traffic.JunctionID, phase int) error {
	return c.call(ctx, EndpointSetPhase, Params{Junction: string(junction), Phase: phase}, nil)
}

// #endregion sink
