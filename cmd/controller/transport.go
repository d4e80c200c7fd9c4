package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/bridge"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/simrpc"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region connect
// connect opens the chosen transport. The returned func closes it.
func connect(ctx context.Context, transport, network, addr string) (traffic.Simulation, func(), error) {
	switch transport {
	case "bridge":
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := bridge.Dial(dialCtx, network, addr)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	case "grpc":
		target := addr
		if network == "unix" && strings.HasPrefix(addr, "/") {
			target = "unix://" + addr
		}
		c, err := simrpc.Dial(target)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want bridge or grpc)", transport)
	}
}

// #endregion connect
