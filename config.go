package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the YAML analysis configuration. Zero values fall back to the
// defaults below, so a partial file only has to name what it changes.
type Config struct {
	Assess struct {
		// Highest acceptable quality flag
		MaxQC int `yaml:"max_qc"`
		// Time-of-day slots for diurnal composites (48 = half-hourly)
		SlotsPerDay int `yaml:"slots_per_day"`
		// Floor for the heteroskedastic residual scale
		ScaleFloor float64 `yaml:"scale_floor"`
		// Regression-tree depth for the partition diagnostic
		TreeDepth int `yaml:"tree_depth"`
		// Random forest size and its runtime-bounding subsample
		ForestTrees int `yaml:"forest_trees"`
		Subsample   int `yaml:"subsample"`
	} `yaml:"assess"`

	StateSpace struct {
		Chains     int   `yaml:"chains"`
		BurnIn     int   `yaml:"burnin"`
		Iterations int   `yaml:"iterations"`
		Seed       int64 `yaml:"seed"`
		Parallel   *bool `yaml:"parallel"`

		Prior struct {
			// Initial-state prior; XIC of 0 means "log of the first
			// observation"
			XIC   float64 `yaml:"x_ic"`
			TauIC float64 `yaml:"tau_ic"`
			AObs  float64 `yaml:"a_obs"`
			RObs  float64 `yaml:"r_obs"`
			AAdd  float64 `yaml:"a_add"`
			RAdd  float64 `yaml:"r_add"`
		} `yaml:"prior"`
	} `yaml:"statespace"`

	Scenarios struct {
		ThinEvery       int `yaml:"thin_every"`
		ForecastHorizon int `yaml:"forecast_horizon"`
		// Reuse one initial-conditions list across all variants
		SharedInits *bool `yaml:"shared_inits"`
	} `yaml:"scenarios"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Assess.MaxQC = 0
	cfg.Assess.SlotsPerDay = 48
	cfg.Assess.ScaleFloor = 1.0
	cfg.Assess.TreeDepth = 3
	cfg.Assess.ForestTrees = 200
	cfg.Assess.Subsample = 2000

	cfg.StateSpace.Chains = 3
	cfg.StateSpace.BurnIn = 1000
	cfg.StateSpace.Iterations = 10000
	cfg.StateSpace.Prior.TauIC = 1.0
	cfg.StateSpace.Prior.AObs = 1.0
	cfg.StateSpace.Prior.RObs = 1.0
	cfg.StateSpace.Prior.AAdd = 1.0
	cfg.StateSpace.Prior.RAdd = 1.0

	cfg.Scenarios.ThinEvery = 4
	cfg.Scenarios.ForecastHorizon = 40
	return cfg
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipelines cannot run with.
func (c *Config) Validate() error {
	if c.Assess.SlotsPerDay <= 0 || 1440%c.Assess.SlotsPerDay != 0 {
		return fmt.Errorf("%w: slots_per_day %d must divide 1440", ErrInvalidInput, c.Assess.SlotsPerDay)
	}
	if c.StateSpace.Chains <= 0 {
		return fmt.Errorf("%w: chains must be positive", ErrInvalidInput)
	}
	if c.StateSpace.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidInput)
	}
	if c.StateSpace.BurnIn < 0 {
		return fmt.Errorf("%w: burnin cannot be negative", ErrInvalidInput)
	}
	if c.Scenarios.ThinEvery <= 1 {
		return fmt.Errorf("%w: thin_every must exceed 1", ErrInvalidInput)
	}
	if c.Scenarios.ForecastHorizon <= 0 {
		return fmt.Errorf("%w: forecast_horizon must be positive", ErrInvalidInput)
	}
	return nil
}

// Model builds the state-space prior from the config, defaulting the
// initial-state mean to the first observed log value.
func (c *Config) Model(firstLogObs float64) RandomWalkModel {
	m := RandomWalkModel{
		XIC:   c.StateSpace.Prior.XIC,
		TauIC: c.StateSpace.Prior.TauIC,
		AObs:  c.StateSpace.Prior.AObs,
		RObs:  c.StateSpace.Prior.RObs,
		AAdd:  c.StateSpace.Prior.AAdd,
		RAdd:  c.StateSpace.Prior.RAdd,
	}
	if m.XIC == 0 {
		m.XIC = firstLogObs
	}
	return m
}

// GibbsOptions builds the sampling options from the config.
func (c *Config) GibbsOptions() GibbsOptions {
	parallel := true
	if c.StateSpace.Parallel != nil {
		parallel = *c.StateSpace.Parallel
	}
	return GibbsOptions{
		Chains:     c.StateSpace.Chains,
		BurnIn:     c.StateSpace.BurnIn,
		Iterations: c.StateSpace.Iterations,
		Seed:       c.StateSpace.Seed,
		Parallel:   parallel,
	}
}

// Experiment builds the missing-data experiment settings from the config.
func (c *Config) Experiment() ExperimentConfig {
	shared := true
	if c.Scenarios.SharedInits != nil {
		shared = *c.Scenarios.SharedInits
	}
	return ExperimentConfig{
		ThinEvery:       c.Scenarios.ThinEvery,
		ForecastHorizon: c.Scenarios.ForecastHorizon,
		SharedInits:     shared,
	}
}
