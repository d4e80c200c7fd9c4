package jaya

import "github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"

// #region candidate
// Candidate proposes one phase duration per junction.
type Candidate map[traffic.JunctionID]float64

// Clone returns an independent copy.
func (c Candidate) Clone() Candidate {
	out := make(Candidate, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Population is the fixed-size set of candidates searched in one run.
type Population []Candidate

// #endregion candidate

// #region objective
// Objective scores a candidate. Lower is better.
type Objective func(c Candidate) float64

// #endregion objective

// #region rand
// Rand is the random source the optimizer draws from. Float64 returns a
// value in [0, 1). *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// #endregion rand

// #region result
// Result is the best candidate of the final fitness evaluation.
type Result struct {
	Durations  map[traffic.JunctionID]float64
	Objective  float64
	Iterations int
}

// #endregion result
