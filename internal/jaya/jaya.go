package jaya

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
	"github.com/samber/lo"
)

// #region optimizer
// Optimizer runs the Jaya population search over phase durations.
type Optimizer struct {
	cfg config.Config
	rng Rand

	// Observer, when set, sees the population after every fitness
	// evaluation and before the update step. It must not modify pop.
	Observer func(iter int, pop Population, best int)
}

// New creates an optimizer. A nil rng is replaced by a PCG source seeded
// from cfg.Seed, or from the clock when the seed is 0.
func New(cfg config.Config, rng Rand) *Optimizer {
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Optimizer{cfg: cfg, rng: rng}
}

// #endregion optimizer

// #region optimize
// Optimize proposes one duration per junction. A nil objective scores
// candidates by TotalDuration. An empty junction list returns an empty
// result without iterating.
func (o *Optimizer) Optimize(junctions []traffic.JunctionID, objective Objective) Result {
	ids := lo.Uniq(junctions)
	if len(ids) == 0 {
		return Result{Durations: map[traffic.JunctionID]float64{}}
	}
	if objective == nil {
		objective = TotalDuration
	}

	pop := o.initPopulation(ids)
	fitness := make([]float64, len(pop))

	// With zero iterations the initial population is still scored once.
	bestIdx := o.evaluate(pop, fitness, objective)
	iterations := 0
	for ; iterations < o.cfg.MaxIterations; iterations++ {
		if iterations > 0 {
			bestIdx = o.evaluate(pop, fitness, objective)
		}
		if o.Observer != nil {
			o.Observer(iterations, pop, bestIdx)
		}
		o.step(pop, bestIdx, ids)
	}

	return Result{
		Durations:  pop[bestIdx].Clone(),
		Objective:  fitness[bestIdx],
		Iterations: iterations,
	}
}

// #endregion optimize

// #region internals
func (o *Optimizer) initPopulation(ids []traffic.JunctionID) Population {
	low, high := o.cfg.MinPhaseDuration, o.cfg.MaxPhaseDuration
	pop := make(Population, o.cfg.PopulationSize)
	for i := range pop {
		c := make(Candidate, len(ids))
		for _, j := range ids {
			c[j] = low + o.rng.Float64()*(high-low)
		}
		pop[i] = c
	}
	return pop
}

// evaluate fills fitness and returns the index of the first minimum.
func (o *Optimizer) evaluate(pop Population, fitness []float64, objective Objective) int {
	best := 0
	for i, c := range pop {
		fitness[i] = objective(c)
		if fitness[i] < fitness[best] {
			best = i
		}
	}
	return best
}

// step moves every candidate except best toward best and away from the
// duration ceiling. best itself is left as measured.
func (o *Optimizer) step(pop Population, bestIdx int, ids []traffic.JunctionID) {
	best := pop[bestIdx]
	ceiling := o.cfg.MaxPhaseDuration
	for i, c := range pop {
		if i == bestIdx {
			continue
		}
		for _, j := range ids {
			r1, r2 := o.rng.Float64(), o.rng.Float64()
			cur := c[j]
			next := cur + r1*(best[j]-math.Abs(cur)) - r2*(ceiling-math.Abs(cur))
			c[j] = o.cfg.Clamp(next)
		}
	}
}

// #endregion internals
