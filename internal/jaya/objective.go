package jaya

import "github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"

// #region total-duration
// TotalDuration scores a candidate by the sum of its durations.
func TotalDuration(c Candidate) float64 {
	var sum float64
	for _, d := range c {
		sum += d
	}
	return sum
}

// #endregion total-duration

// #region waiting
// WaitingObjective scores each junction by w/d + d, where w is the waiting
// time observed at that junction and d the proposed duration. The
// per-junction optimum is d = sqrt(w), clamped by the search bounds.
func WaitingObjective(waits map[traffic.JunctionID]float64) Objective {
	return func(c Candidate) float64 {
		var cost float64
		for j, d := range c {
			if d <= 0 {
				continue
			}
			cost += waits[j]/d + d
		}
		return cost
	}
}

// #endregion waiting
