package main

import (
	"fmt"
	"math"
	"time"
)

// EnsembleOutput holds the output of an upstream ensemble (or particle filter)
// run: a dense 3-D array indexed by (time step, member, variable). The data is
// immutable once loaded; accessors compute member statistics on demand.
type EnsembleOutput struct {
	// Variable names, e.g. "NEE", "GPP", "LeafC"
	VarNames []string
	// Physical units for each variable, e.g. "umolCO2 m-2 s-1"
	Units []string

	Steps   int
	Members int

	// Backing slice in (step, member, variable) order
	data []float64
}

// NewEnsembleOutput allocates an ensemble array for the given dimensions.
func NewEnsembleOutput(steps, members int, varNames, units []string) (*EnsembleOutput, error) {
	if steps <= 0 || members <= 0 || len(varNames) == 0 {
		return nil, fmt.Errorf("ensemble dimensions must be positive: steps=%d members=%d vars=%d",
			steps, members, len(varNames))
	}
	if units != nil && len(units) != len(varNames) {
		return nil, fmt.Errorf("units length %d does not match variable count %d", len(units), len(varNames))
	}
	if units == nil {
		units = make([]string, len(varNames))
	}
	return &EnsembleOutput{
		VarNames: varNames,
		Units:    units,
		Steps:    steps,
		Members:  members,
		data:     make([]float64, steps*members*len(varNames)),
	}, nil
}

func (e *EnsembleOutput) index(t, m, v int) int {
	return (t*e.Members+m)*len(e.VarNames) + v
}

// At returns the value for time step t, member m and variable v.
func (e *EnsembleOutput) At(t, m, v int) float64 {
	return e.data[e.index(t, m, v)]
}

// Set stores a value for time step t, member m and variable v.
func (e *EnsembleOutput) Set(t, m, v int, x float64) {
	e.data[e.index(t, m, v)] = x
}

// VarIndex resolves a variable by name, returning -1 if unknown.
func (e *EnsembleOutput) VarIndex(name string) int {
	for i, n := range e.VarNames {
		if n == name {
			return i
		}
	}
	return -1
}

// MemberMean returns the across-member mean trajectory of variable v.
// Time steps where every member is missing come back as NaN.
func (e *EnsembleOutput) MemberMean(v int) []float64 {
	out := make([]float64, e.Steps)
	for t := 0; t < e.Steps; t++ {
		sum, n := 0.0, 0
		for m := 0; m < e.Members; m++ {
			x := e.At(t, m, v)
			if math.IsNaN(x) {
				continue
			}
			sum += x
			n++
		}
		if n == 0 {
			out[t] = math.NaN()
		} else {
			out[t] = sum / float64(n)
		}
	}
	return out
}

// MemberQuantile returns the pointwise q-quantile trajectory of variable v
// across members.
func (e *EnsembleOutput) MemberQuantile(v int, q float64) []float64 {
	out := make([]float64, e.Steps)
	buf := make([]float64, 0, e.Members)
	for t := 0; t < e.Steps; t++ {
		buf = buf[:0]
		for m := 0; m < e.Members; m++ {
			x := e.At(t, m, v)
			if !math.IsNaN(x) {
				buf = append(buf, x)
			}
		}
		out[t] = empiricalQuantile(buf, q)
	}
	return out
}

// FluxRecord is one half-hourly flux-tower observation. Missing values are
// NaN after sentinel conversion; QC holds the tower's quality flag where 0
// means original (best) data.
type FluxRecord struct {
	Time time.Time
	// Gap-filled net ecosystem exchange estimate
	NEE float64
	// Air temperature (degC)
	TA float64
	// Photosynthetically active radiation (umol m-2 s-1)
	PAR float64
	// Vapour pressure deficit (hPa)
	VPD float64
	// Quality flag for NEE
	QC int
}

// FluxTable is an ordered collection of flux records for one site.
type FluxTable struct {
	Records []FluxRecord
}

// NEE returns the NEE column.
func (ft *FluxTable) NEE() []float64 {
	out := make([]float64, len(ft.Records))
	for i, r := range ft.Records {
		out[i] = r.NEE
	}
	return out
}

// Times returns the timestamp column.
func (ft *FluxTable) Times() []time.Time {
	out := make([]time.Time, len(ft.Records))
	for i, r := range ft.Records {
		out[i] = r.Time
	}
	return out
}

// QualityMask selects time steps whose quality flag is acceptable
// (QC <= maxQC) and whose NEE value is present. Every model-observation
// comparison conditions on this mask.
func (ft *FluxTable) QualityMask(maxQC int) []bool {
	mask := make([]bool, len(ft.Records))
	for i, r := range ft.Records {
		mask[i] = r.QC <= maxQC && !math.IsNaN(r.NEE)
	}
	return mask
}

// Drivers extracts the driver-variable matrix (TA, PAR, VPD) used by the
// residual-diagnostic models, in record order.
func (ft *FluxTable) Drivers() *DriverSet {
	names := []string{"TA", "PAR", "VPD"}
	rows := make([][]float64, len(ft.Records))
	for i, r := range ft.Records {
		rows[i] = []float64{r.TA, r.PAR, r.VPD}
	}
	return &DriverSet{Names: names, Rows: rows}
}

// DriverSet is a named matrix of candidate error drivers, row-aligned with
// the flux table it came from.
type DriverSet struct {
	Names []string
	Rows  [][]float64
}

// ErrorStats are the four pointwise skill scores computed for each candidate
// predictor against the observations.
type ErrorStats struct {
	RMSE float64
	Bias float64
	Corr float64
	// OLS slope of observation regressed on prediction
	Slope float64
}

// PredictorStats pairs a named predictor with its scores; one row of the
// error-statistics table.
type PredictorStats struct {
	Predictor string
	Stats     ErrorStats
	// Number of mask-selected pairs the scores were computed from
	N int
}

// TaylorEntry summarises one predictor for the Taylor diagram: its standard
// deviation, correlation with the reference, and centered RMS difference.
type TaylorEntry struct {
	Predictor string
	StdDev    float64
	Corr      float64
	CRMSE     float64
}

// SeriesObs is a univariate observed time series of strictly positive values,
// e.g. a weekly flu index. Missing values are NaN.
type SeriesObs struct {
	Dates  []time.Time
	Values []float64
}

// Log returns the log-transformed values. Missing entries stay NaN; a zero or
// negative observed value is an input error because the series is modelled as
// multiplicative.
func (s *SeriesObs) Log() ([]float64, error) {
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: non-positive value %g at index %d", ErrInvalidInput, v, i)
		}
		out[i] = math.Log(v)
	}
	return out, nil
}

// RandomWalkModel describes the linear-Gaussian state-space model as data:
//
//	y[i] ~ N(x[i], 1/tauObs)        for observed i
//	x[1] ~ N(XIC, 1/TauIC)
//	x[i] ~ N(x[i-1], 1/tauAdd)      for i > 1
//	tauObs ~ Gamma(AObs, RObs)
//	tauAdd ~ Gamma(AAdd, RAdd)
//
// There is no external textual model specification; the Gibbs sampler
// consumes this struct directly.
type RandomWalkModel struct {
	// Initial-state prior
	XIC   float64
	TauIC float64
	// Gamma(shape, rate) prior on the observation precision
	AObs float64
	RObs float64
	// Gamma(shape, rate) prior on the process precision
	AAdd float64
	RAdd float64
}

// Validate checks that the hyperparameters define proper distributions.
func (m RandomWalkModel) Validate() error {
	if m.TauIC <= 0 {
		return fmt.Errorf("%w: initial-state precision must be positive, got %g", ErrInvalidInput, m.TauIC)
	}
	if m.AObs <= 0 || m.RObs <= 0 || m.AAdd <= 0 || m.RAdd <= 0 {
		return fmt.Errorf("%w: Gamma hyperparameters must be positive", ErrInvalidInput)
	}
	return nil
}

// ChainInit is the starting point of one Gibbs chain. Distinct chains start
// from distinct precisions derived by resampling the observed series.
type ChainInit struct {
	TauObs float64
	TauAdd float64
}

// GibbsOptions controls a sampling run.
type GibbsOptions struct {
	// Number of independent chains (e.g. 3)
	Chains int
	// Sweeps discarded before summarization
	BurnIn int
	// Production sweeps retained per chain
	Iterations int
	// RNG seed; 0 means time-based
	Seed int64
	// Explicit per-chain initial conditions. When nil they are drawn by
	// resampling the observed series. Reusing one list across missing-data
	// variants keeps the variants comparable.
	Inits []ChainInit
	// Run chains on a worker pool
	Parallel bool
}

// ChainSamples holds every sweep of one chain, burn-in included.
type ChainSamples struct {
	// X[s][i] is the latent state at time index i on sweep s
	X [][]float64
	// Precision draws, one per sweep
	TauObs []float64
	TauAdd []float64
}

// Posterior collects all chains from one model run. It is retained only until
// summary statistics are extracted.
type Posterior struct {
	Chains []ChainSamples
	BurnIn int
	// Length of the latent sequence
	N int
}

// CredibleBand is the pointwise 2.5/50/97.5 percentile summary of the latent
// state, back-transformed to the original scale.
type CredibleBand struct {
	Dates  []time.Time
	Lower  []float64
	Median []float64
	Upper  []float64
}

// Width returns the pointwise interval width upper-lower.
func (b *CredibleBand) Width() []float64 {
	out := make([]float64, len(b.Lower))
	for i := range out {
		out[i] = b.Upper[i] - b.Lower[i]
	}
	return out
}

// ScenarioResult is the outcome of one missing-data experiment.
type ScenarioResult struct {
	Name string
	// Observation vector after masking, log scale
	Y []float64
	// Indices forced to absent
	Removed []int
	Band    CredibleBand
	// Precision posteriors reported as standard deviations
	SDObs PosteriorScalar
	SDAdd PosteriorScalar
	// Gelman-Rubin report, filled when the run had two or more chains
	Convergence ConvergenceReport
}

// PosteriorScalar summarises one scalar parameter's posterior.
type PosteriorScalar struct {
	Mean   float64
	Lower  float64
	Median float64
	Upper  float64
}
