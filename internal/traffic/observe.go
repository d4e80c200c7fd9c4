package traffic

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// #region lanes
// UniqueLanes returns the junction's controlled lanes without repeats, in
// first-seen order. Providers report one entry per signal link, so a lane
// feeding several links shows up more than once.
func UniqueLanes(ctx context.Context, p StateProvider, junction JunctionID) ([]LaneID, error) {
	lanes, err := p.ControlledLanes(ctx, junction)
	if err != nil {
		return nil, fmt.Errorf("controlled lanes %s: %w", junction, err)
	}
	return lo.Uniq(lanes), nil
}

// #endregion lanes

// #region observe-lanes
// ObserveLanes reads stopped-vehicle counts and aggregate waiting time for
// every controlled lane of a junction.
func ObserveLanes(ctx context.Context, p StateProvider, junction JunctionID) ([]Lane, error) {
	lanes, err := UniqueLanes(ctx, p, junction)
	if err != nil {
		return nil, err
	}

	out := make([]Lane, 0, len(lanes))
	for _, id := range lanes {
		vehicles, err := p.LaneVehicleIDs(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lane vehicles %s: %w", id, err)
		}
		obs := Lane{ID: id}
		for _, v := range vehicles {
			speed, err := p.VehicleSpeed(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("vehicle speed %s: %w", v, err)
			}
			if speed == 0 {
				obs.Queue++
			}
			wait, err := p.VehicleWaitingTime(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("vehicle waiting time %s: %w", v, err)
			}
			obs.Waiting += wait
		}
		out = append(out, obs)
	}
	return out, nil
}

// #endregion observe-lanes

// #region junction-waiting
// JunctionWaiting sums lane waiting time per junction.
func JunctionWaiting(ctx context.Context, p StateProvider, junctions []JunctionID) (map[JunctionID]float64, error) {
	waits := make(map[JunctionID]float64, len(junctions))
	for _, j := range junctions {
		lanes, err := ObserveLanes(ctx, p, j)
		if err != nil {
			return nil, err
		}
		waits[j] = lo.SumBy(lanes, func(l Lane) float64 { return l.Waiting })
	}
	return waits, nil
}

// #endregion junction-waiting
