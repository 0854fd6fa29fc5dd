package main

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestPSRF_IdenticalChains(t *testing.T) {
	rng := rand.New(rand.NewPCG(19, 29))
	draws := make([]float64, 500)
	for i := range draws {
		draws[i] = distuv.Normal{Mu: 10, Sigma: 2, Src: rng}.Rand()
	}
	r, err := PSRF([][]float64{draws, draws, draws})
	assert.NoError(t, err)
	// zero between-chain variance pulls the factor below 1
	assert.InDelta(t, 1.0, r, 0.01)
}

func TestPSRF_MixedChainsNearOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(23, 31))
	mk := func() []float64 {
		out := make([]float64, 2000)
		for i := range out {
			out[i] = distuv.Normal{Mu: 5, Sigma: 1, Src: rng}.Rand()
		}
		return out
	}
	r, err := PSRF([][]float64{mk(), mk(), mk()})
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, r, 0.05)
}

func TestPSRF_DivergedChains(t *testing.T) {
	rng := rand.New(rand.NewPCG(37, 41))
	mk := func(mu float64) []float64 {
		out := make([]float64, 500)
		for i := range out {
			out[i] = distuv.Normal{Mu: mu, Sigma: 0.1, Src: rng}.Rand()
		}
		return out
	}
	r, err := PSRF([][]float64{mk(0), mk(10)})
	assert.NoError(t, err)
	assert.Greater(t, r, 1.1)
}

func TestPSRF_ConstantChains(t *testing.T) {
	c := []float64{3, 3, 3, 3}
	r, err := PSRF([][]float64{c, c})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, r)
}

func TestPSRF_Invalid(t *testing.T) {
	_, err := PSRF([][]float64{{1, 2, 3}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = PSRF([][]float64{{1}, {2}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = PSRF([][]float64{{1, 2, 3}, {1, 2}})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDiagnose(t *testing.T) {
	rng := rand.New(rand.NewPCG(43, 47))
	y := logRandomWalk(40, 2.0, 0.3, 0.1, rng)

	post, err := GibbsSample(y, testModel(), GibbsOptions{Chains: 3, BurnIn: 200, Iterations: 1000, Seed: 71})
	assert.NoError(t, err)

	rep, err := post.Diagnose()
	assert.NoError(t, err)
	// a simple conjugate model on clean data mixes quickly
	assert.Less(t, rep.PSRFTauObs, 1.2)
	assert.Less(t, rep.PSRFTauAdd, 1.2)
}

func TestDiagnose_SingleChain(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5, 6}
	post, err := GibbsSample(y, testModel(), GibbsOptions{Chains: 1, BurnIn: 10, Iterations: 50, Seed: 1})
	assert.NoError(t, err)
	_, err = post.Diagnose()
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPrintConvergence(t *testing.T) {
	var buf bytes.Buffer
	PrintConvergence(&buf, ConvergenceReport{PSRFTauObs: 1.01, PSRFTauAdd: 1.02})
	out := buf.String()
	assert.Contains(t, out, "tau_obs")
	assert.Contains(t, out, "tau_add")
	assert.NotContains(t, out, "more samples")

	buf.Reset()
	PrintConvergence(&buf, ConvergenceReport{PSRFTauObs: 1.5, PSRFTauAdd: 1.0})
	assert.Contains(t, buf.String(), "more samples")
}

func TestPrintErrorStatsTable(t *testing.T) {
	var buf bytes.Buffer
	rows := []PredictorStats{
		{Predictor: "ensemble", Stats: ErrorStats{RMSE: 1.5, Bias: -0.2, Corr: 0.9, Slope: 1.1}, N: 1000},
		{Predictor: "climatology", Stats: ErrorStats{RMSE: 2.5, Bias: 0.1, Corr: 0.7, Slope: 0.8}, N: 1000},
	}
	PrintErrorStatsTable(&buf, rows)
	out := buf.String()
	assert.Contains(t, out, "ensemble")
	assert.Contains(t, out, "climatology")
	assert.Contains(t, out, "RMSE")
}
