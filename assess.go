package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AssessInputs are the aligned inputs of the model-assessment pipeline. The
// ensemble, the particle-filter output and the evaluation-year flux table
// must cover the same time steps.
type AssessInputs struct {
	Ensemble *EnsembleOutput
	Filter   *EnsembleOutput
	EvalYear *FluxTable
	// Comparison years for the climatology baseline; the evaluation year is
	// excluded automatically
	CompYears []*FluxTable
	// The flux variable under assessment
	Variable string
}

// AssessResult bundles the outputs of one assessment run.
type AssessResult struct {
	// Error-statistics table: ensemble mean, particle-filter mean,
	// climatology
	Table []PredictorStats
	// Taylor summaries for the same three predictors
	Taylor []TaylorEntry
	// Reference (observed) standard deviation for the Taylor diagram
	RefStdDev float64

	// Aligned trajectories on the evaluation year
	Obs       []float64
	EnsMean   []float64
	PFMean    []float64
	ClimPred  []float64
	Mask      []bool
	Cycle     *AnnualCycle
	ObsDiurn  []float64
	EnsDiurn  []float64
	Spectrum  *WaveletSpectrum
	Tree      *RegressionTree
	Forest    *RandomForest
	DriverSet *DriverSet
	// Forest importance aligned with DriverSet.Names
	Importance []float64
}

// RunAssessment executes pipeline 1: align by quality flag, score the three
// candidate predictors, composite the diurnal cycle, transform the error
// signal and fit the two residual-diagnostic models.
func RunAssessment(in AssessInputs, cfg *Config) (*AssessResult, error) {
	if in.Ensemble == nil || in.Filter == nil || in.EvalYear == nil {
		return nil, fmt.Errorf("%w: ensemble, filter and evaluation-year inputs are all required", ErrInvalidInput)
	}
	v := in.Ensemble.VarIndex(in.Variable)
	if v < 0 {
		return nil, fmt.Errorf("%w: variable %q not in ensemble output", ErrInvalidInput, in.Variable)
	}
	vf := in.Filter.VarIndex(in.Variable)
	if vf < 0 {
		return nil, fmt.Errorf("%w: variable %q not in particle-filter output", ErrInvalidInput, in.Variable)
	}

	n := len(in.EvalYear.Records)
	if in.Ensemble.Steps != n || in.Filter.Steps != n {
		return nil, fmt.Errorf("%w: model outputs (%d, %d steps) do not align with %d observations",
			ErrInvalidInput, in.Ensemble.Steps, in.Filter.Steps, n)
	}

	res := &AssessResult{
		Obs:     in.EvalYear.NEE(),
		EnsMean: in.Ensemble.MemberMean(v),
		PFMean:  in.Filter.MemberMean(vf),
		Mask:    in.EvalYear.QualityMask(cfg.Assess.MaxQC),
	}
	times := in.EvalYear.Times()
	evalYear := times[0].Year()

	// Climatology baseline from the comparison years only.
	cyc, err := ClimatologyExcluding(in.CompYears, evalYear, cfg.Assess.MaxQC, cfg.Assess.SlotsPerDay)
	if err != nil {
		return nil, fmt.Errorf("climatology: %w", err)
	}
	res.Cycle = cyc
	res.ClimPred = cyc.Predict(times)

	// Error-statistics table, one row per candidate predictor, all
	// conditioned on the same quality mask.
	for _, cand := range []struct {
		name string
		pred []float64
	}{
		{"ensemble", res.EnsMean},
		{"particle_filter", res.PFMean},
		{"climatology", res.ClimPred},
	} {
		row, err := ScorePredictor(cand.name, cand.pred, res.Obs, res.Mask)
		if err != nil {
			return nil, err
		}
		res.Table = append(res.Table, row)

		p, o, err := MaskPairs(cand.pred, res.Obs, res.Mask)
		if err != nil {
			return nil, err
		}
		te, err := TaylorStats(cand.name, p, o)
		if err != nil {
			return nil, err
		}
		res.Taylor = append(res.Taylor, te)
		if res.RefStdDev == 0 {
			res.RefStdDev = stat.StdDev(o, nil)
		}
	}

	// Diurnal composites of observations and the ensemble mean.
	res.ObsDiurn, err = DiurnalComposite(times, res.Obs, res.Mask, cfg.Assess.SlotsPerDay)
	if err != nil {
		return nil, err
	}
	res.EnsDiurn, err = DiurnalComposite(times, res.EnsMean, res.Mask, cfg.Assess.SlotsPerDay)
	if err != nil {
		return nil, err
	}

	// Wavelet power of the masked residual series, gaps bridged by the
	// residual mean so they contribute no anomaly.
	resid, err := Residuals(res.EnsMean, res.Obs)
	if err != nil {
		return nil, err
	}
	for i := range resid {
		if !res.Mask[i] {
			resid[i] = math.NaN()
		}
	}
	rp, _, err := MaskPairs(resid, resid, nil)
	if err != nil {
		return nil, err
	}
	if len(rp) >= 4 {
		filled := FillMissing(resid, stat.Mean(rp, nil))
		spec, err := MorletPower(filled, DefaultScales(len(filled), 1), 1)
		if err != nil {
			return nil, err
		}
		res.Spectrum = spec
	}

	// Residual-diagnostic models on the drivers, same mask as the error
	// signal.
	normErr, err := NormalizedError(res.EnsMean, res.Obs, cfg.Assess.ScaleFloor)
	if err != nil {
		return nil, err
	}
	res.DriverSet = in.EvalYear.Drivers()
	X, y, err := AlignDrivers(res.DriverSet, maskedCopy(normErr, res.Mask), res.Mask)
	if err != nil {
		return nil, err
	}
	if len(X) >= 2*cfg.Assess.TreeDepth {
		tree, err := FitRegressionTree(X, y, res.DriverSet.Names, TreeOptions{MaxDepth: cfg.Assess.TreeDepth})
		if err != nil {
			return nil, err
		}
		res.Tree = tree

		absErr := make([]float64, len(y))
		for i, e := range y {
			absErr[i] = math.Abs(e)
		}
		forest, err := FitRandomForest(X, absErr, res.DriverSet.Names, ForestOptions{
			Trees:     cfg.Assess.ForestTrees,
			Subsample: cfg.Assess.Subsample,
			Parallel:  true,
		})
		if err != nil {
			return nil, err
		}
		res.Forest = forest
		res.Importance = forest.Importance()
	}

	return res, nil
}

// maskedCopy blanks entries where mask is false.
func maskedCopy(x []float64, mask []bool) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if mask[i] {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
