package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// #region endpoints
const (
	EndpointJunctionIDs        = "junction_ids"
	EndpointControlledLanes    = "controlled_lanes"
	EndpointLaneVehicleIDs     = "lane_vehicle_ids"
	EndpointVehicleSpeed       = "vehicle_speed"
	EndpointVehicleWaitingTime = "vehicle_waiting_time"
	EndpointLaneVehicleCount   = "lane_vehicle_count"
	EndpointCurrentPhase       = "current_phase"
	EndpointPhaseCount         = "phase_count"
	EndpointStep               = "step"
	EndpointMinExpected        = "min_expected"
	EndpointSetPhaseDuration   = "set_phase_duration"
	EndpointSetPhase           = "set_phase"
	EndpointStop               = "stop"
)

// Error codes a bridge may return. The unknown_* codes mean the referenced
// object no longer exists in the simulation.
const (
	CodeUnknownJunction = "unknown_junction"
	CodeUnknownLane     = "unknown_lane"
	CodeUnknownVehicle  = "unknown_vehicle"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

// #endregion endpoints

// #region messages

// Params carries the arguments of every endpoint; unused fields are omitted.
type Params struct {
	Junction string  `msgpack:"junction,omitempty"`
	Lane     string  `msgpack:"lane,omitempty"`
	Vehicle  string  `msgpack:"vehicle,omitempty"`
	Duration float64 `msgpack:"duration,omitempty"`
	Phase    int     `msgpack:"phase,omitempty"`
}

// Request is one call to the bridge.
type Request struct {
	Endpoint string `msgpack:"endpoint"`
	Params   Params `msgpack:"params"`
}

// Response is the bridge's answer. Result holds the msgpack-encoded return
// value when OK is true.
type Response struct {
	OK     bool               `msgpack:"ok"`
	Code   string             `msgpack:"code,omitempty"`
	Error  string             `msgpack:"error,omitempty"`
	Result msgpack.RawMessage `msgpack:"result,omitempty"`
}

// #endregion messages

// #region framing

// MaxFrameSize bounds a single message body.
const MaxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("frame exceeds limit")

// writeFrame writes a 4-byte big-endian length followed by the payload.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame of %d bytes: %w", len(payload), errFrameTooLarge)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("read frame of %d bytes: %w", n, errFrameTooLarge)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return writeFrame(w, payload)
}

func readMessage(r io.Reader, v any) error {
	payload, err := readFrame(r)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// #endregion framing
