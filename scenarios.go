package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ThinObservations keeps every keepEvery-th observation starting at offset
// and forces the rest to absent, simulating a lower-frequency monitoring
// design. Returns the masked copy and the indices removed.
func ThinObservations(y []float64, keepEvery, offset int) ([]float64, []int, error) {
	if keepEvery <= 0 {
		return nil, nil, fmt.Errorf("%w: keepEvery must be positive, got %d", ErrInvalidInput, keepEvery)
	}
	if offset < 0 || offset >= keepEvery {
		return nil, nil, fmt.Errorf("%w: offset %d outside [0,%d)", ErrInvalidInput, offset, keepEvery)
	}
	out := make([]float64, len(y))
	var removed []int
	for i, v := range y {
		if (i-offset)%keepEvery == 0 && i >= offset {
			out[i] = v
			continue
		}
		out[i] = math.NaN()
		if !math.IsNaN(v) {
			removed = append(removed, i)
		}
	}
	return out, removed, nil
}

// RemoveTrailing forces the last horizon entries to absent, turning the tail
// of the series into a forecasting problem.
func RemoveTrailing(y []float64, horizon int) ([]float64, []int, error) {
	if horizon <= 0 || horizon >= len(y) {
		return nil, nil, fmt.Errorf("%w: horizon %d outside (0,%d)", ErrInvalidInput, horizon, len(y))
	}
	out := make([]float64, len(y))
	copy(out, y)
	var removed []int
	for i := len(y) - horizon; i < len(y); i++ {
		if !math.IsNaN(out[i]) {
			removed = append(removed, i)
		}
		out[i] = math.NaN()
	}
	return out, removed, nil
}

// ExperimentConfig parameterises the missing-data experiments.
type ExperimentConfig struct {
	// Keep every k-th observation in the thinning variant (e.g. 4 turns a
	// weekly series roughly monthly)
	ThinEvery int
	// Observations blanked at the end of the forecast variant
	ForecastHorizon int
	// Reuse one initial-conditions list across all variants. Sharing keeps
	// the variants comparable; it is a choice, not an accident.
	SharedInits bool
}

// RunMissingDataExperiments fits the same random-walk model under the
// original observation vector, a thinned variant and a trailing-window
// forecast variant. Only the missing-data mask differs between runs.
func RunMissingDataExperiments(dates []time.Time, y []float64, m RandomWalkModel,
	opts GibbsOptions, cfg ExperimentConfig) ([]ScenarioResult, error) {

	if cfg.ThinEvery <= 1 {
		return nil, fmt.Errorf("%w: ThinEvery must exceed 1", ErrInvalidInput)
	}

	if opts.Inits == nil && cfg.SharedInits {
		seed := opts.Seed
		if seed == 0 {
			seed = 1
		}
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0xda3e39cb94b95bdb))
		inits, err := DrawInits(y, opts.Chains, rng)
		if err != nil {
			return nil, err
		}
		opts.Inits = inits
	}

	thinned, thinnedIdx, err := ThinObservations(y, cfg.ThinEvery, 0)
	if err != nil {
		return nil, err
	}
	forecast, forecastIdx, err := RemoveTrailing(y, cfg.ForecastHorizon)
	if err != nil {
		return nil, err
	}

	variants := []struct {
		name    string
		y       []float64
		removed []int
	}{
		{"original", y, nil},
		{"thinned", thinned, thinnedIdx},
		{"forecast", forecast, forecastIdx},
	}

	results := make([]ScenarioResult, 0, len(variants))
	for _, v := range variants {
		post, err := GibbsSample(v.y, m, opts)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", v.name, err)
		}
		band, err := post.Summarize(dates)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", v.name, err)
		}
		sdObs, err := post.SummarizeSD("obs")
		if err != nil {
			return nil, err
		}
		sdAdd, err := post.SummarizeSD("add")
		if err != nil {
			return nil, err
		}
		res := ScenarioResult{
			Name:    v.name,
			Y:       v.y,
			Removed: v.removed,
			Band:    band,
			SDObs:   sdObs,
			SDAdd:   sdAdd,
		}
		if opts.Chains >= 2 {
			rep, err := post.Diagnose()
			if err != nil {
				return nil, fmt.Errorf("scenario %s: %w", v.name, err)
			}
			res.Convergence = rep
		}
		results = append(results, res)
	}
	return results, nil
}
