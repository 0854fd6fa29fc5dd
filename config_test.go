package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.StateSpace.Chains)
	assert.Equal(t, 1000, cfg.StateSpace.BurnIn)
	assert.Equal(t, 10000, cfg.StateSpace.Iterations)
	assert.Equal(t, 48, cfg.Assess.SlotsPerDay)
	assert.Equal(t, 4, cfg.Scenarios.ThinEvery)
	assert.Equal(t, 40, cfg.Scenarios.ForecastHorizon)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `statespace:
  chains: 4
  seed: 99
  prior:
    a_obs: 2.5
scenarios:
  thin_every: 6
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, 4, cfg.StateSpace.Chains)
	assert.Equal(t, int64(99), cfg.StateSpace.Seed)
	assert.Equal(t, 2.5, cfg.StateSpace.Prior.AObs)
	assert.Equal(t, 6, cfg.Scenarios.ThinEvery)
	// untouched keys keep their defaults
	assert.Equal(t, 10000, cfg.StateSpace.Iterations)
	assert.Equal(t, 48, cfg.Assess.SlotsPerDay)
}

func TestLoadConfig_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("statespce:\n  chains: 2\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("assess:\n  slots_per_day: 7\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_ModelDefaultsXIC(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.Model(4.6)
	assert.Equal(t, 4.6, m.XIC)
	assert.NoError(t, m.Validate())

	cfg.StateSpace.Prior.XIC = 2.0
	m = cfg.Model(4.6)
	assert.Equal(t, 2.0, m.XIC)
}

func TestConfig_GibbsOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.GibbsOptions()
	assert.Equal(t, 3, opts.Chains)
	assert.True(t, opts.Parallel)

	off := false
	cfg.StateSpace.Parallel = &off
	assert.False(t, cfg.GibbsOptions().Parallel)
}

func TestConfig_Experiment(t *testing.T) {
	cfg := DefaultConfig()
	exp := cfg.Experiment()
	assert.Equal(t, 4, exp.ThinEvery)
	assert.Equal(t, 40, exp.ForecastHorizon)
	assert.True(t, exp.SharedInits)

	off := false
	cfg.Scenarios.SharedInits = &off
	assert.False(t, cfg.Experiment().SharedInits)
}

func TestRandomWalkModel_Validate(t *testing.T) {
	m := RandomWalkModel{XIC: 0, TauIC: 1, AObs: 1, RObs: 1, AAdd: 1, RAdd: 1}
	assert.NoError(t, m.Validate())

	m.TauIC = 0
	assert.Error(t, m.Validate())

	m.TauIC = 1
	m.RAdd = -1
	assert.Error(t, m.Validate())
}
