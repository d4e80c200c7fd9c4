package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region objectives
const (
	ObjectiveDuration = "duration" // minimise total phase duration
	ObjectiveWaiting  = "waiting"  // minimise a waiting-time cost
)

// #endregion objectives

// #region config
// Config holds the tuning of the optimizer and congestion controller.
// It is read once at startup and never mutated during a run.
type Config struct {
	PopulationSize         int     `yaml:"population_size" json:"population_size"`
	MaxIterations          int     `yaml:"max_iterations" json:"max_iterations"`
	OptimizationInterval   int     `yaml:"optimization_interval" json:"optimization_interval"` // control steps
	MinPhaseDuration       float64 `yaml:"min_phase_duration" json:"min_phase_duration"`       // seconds
	MaxPhaseDuration       float64 `yaml:"max_phase_duration" json:"max_phase_duration"`       // seconds
	CriticalQueueThreshold int     `yaml:"critical_queue_threshold" json:"critical_queue_threshold"`
	DynamicQueueFraction   float64 `yaml:"dynamic_queue_fraction" json:"dynamic_queue_fraction"`

	// MaxDrainTicks caps the drain wait. 0 leaves it unbounded.
	MaxDrainTicks int    `yaml:"max_drain_ticks" json:"max_drain_ticks"`
	Objective     string `yaml:"objective" json:"objective"`
	// Seed for the optimizer's random source. 0 picks one from the clock.
	Seed uint64 `yaml:"seed" json:"seed"`
}

// Default returns the stock tuning.
func Default() Config {
	return Config{
		PopulationSize:         10,
		MaxIterations:          100,
		OptimizationInterval:   300,
		MinPhaseDuration:       10,
		MaxPhaseDuration:       60,
		CriticalQueueThreshold: 20,
		DynamicQueueFraction:   0.3,
		MaxDrainTicks:          120,
		Objective:              ObjectiveDuration,
	}
}

// #endregion config

// #region validate
// Validate reports every out-of-range field at once.
func (c Config) Validate() error {
	var errs []error
	if c.PopulationSize < 1 {
		errs = append(errs, fmt.Errorf("population_size must be >= 1, got %d", c.PopulationSize))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be >= 0, got %d", c.MaxIterations))
	}
	if c.OptimizationInterval < 1 {
		errs = append(errs, fmt.Errorf("optimization_interval must be >= 1, got %d", c.OptimizationInterval))
	}
	if c.MinPhaseDuration <= 0 {
		errs = append(errs, fmt.Errorf("min_phase_duration must be > 0, got %g", c.MinPhaseDuration))
	}
	if c.MaxPhaseDuration < c.MinPhaseDuration {
		errs = append(errs, fmt.Errorf("max_phase_duration %g below min_phase_duration %g", c.MaxPhaseDuration, c.MinPhaseDuration))
	}
	if c.CriticalQueueThreshold < 0 {
		errs = append(errs, fmt.Errorf("critical_queue_threshold must be >= 0, got %d", c.CriticalQueueThreshold))
	}
	if c.DynamicQueueFraction < 0 || c.DynamicQueueFraction >= 1 {
		errs = append(errs, fmt.Errorf("dynamic_queue_fraction must be in [0,1), got %g", c.DynamicQueueFraction))
	}
	if c.MaxDrainTicks < 0 {
		errs = append(errs, fmt.Errorf("max_drain_ticks must be >= 0, got %d", c.MaxDrainTicks))
	}
	if c.Objective != ObjectiveDuration && c.Objective != ObjectiveWaiting {
		errs = append(errs, fmt.Errorf("objective must be %q or %q, got %q", ObjectiveDuration, ObjectiveWaiting, c.Objective))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region clamp
// Clamp bounds a duration to [MinPhaseDuration, MaxPhaseDuration].
func (c Config) Clamp(seconds float64) float64 {
	return max(c.MinPhaseDuration, min(c.MaxPhaseDuration, seconds))
}

// #endregion clamp

// #region load
// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// #endregion load
