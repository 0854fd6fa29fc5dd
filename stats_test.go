package main

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeErrorStats_PerfectPrediction(t *testing.T) {
	obs := []float64{1.5, -2.0, 3.25, 0.0, 4.5}
	es, err := ComputeErrorStats(obs, obs)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, es.RMSE)
	assert.Equal(t, 0.0, es.Bias)
	assert.InDelta(t, 1.0, es.Corr, 1e-12)
	assert.InDelta(t, 1.0, es.Slope, 1e-12)
}

func TestComputeErrorStats_KnownValues(t *testing.T) {
	pred := []float64{1, 2, 3, 4}
	obs := []float64{2, 3, 4, 5}

	es, err := ComputeErrorStats(pred, obs)
	assert.NoError(t, err)
	// constant offset of -1
	assert.InDelta(t, 1.0, es.RMSE, 1e-12)
	assert.InDelta(t, -1.0, es.Bias, 1e-12)
	assert.InDelta(t, 1.0, es.Corr, 1e-12)
	assert.InDelta(t, 1.0, es.Slope, 1e-12)
}

// RMSE >= |bias| always, with equality only for a constant error.
func TestComputeErrorStats_RMSEDominatesBias(t *testing.T) {
	preds := [][]float64{
		{1, 2, 3, 4, 5},
		{0, 0, 0, 0, 0},
		{-3, 7, 2, 9, -1},
	}
	obs := []float64{2, 1, 4, 3, 6}
	for i, pred := range preds {
		es, err := ComputeErrorStats(pred, obs)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if es.RMSE < math.Abs(es.Bias)-1e-12 {
			t.Errorf("case %d: RMSE %v < |bias| %v", i, es.RMSE, es.Bias)
		}
	}
}

// Correlation is invariant under positive affine rescaling of either input.
func TestComputeErrorStats_CorrAffineInvariant(t *testing.T) {
	pred := []float64{1, 4, 2, 8, 5, 7}
	obs := []float64{2, 5, 1, 9, 6, 6}

	base, err := ComputeErrorStats(pred, obs)
	assert.NoError(t, err)

	scaled := make([]float64, len(pred))
	for i, v := range pred {
		scaled[i] = 3.7*v + 11.0
	}
	es, err := ComputeErrorStats(scaled, obs)
	assert.NoError(t, err)
	assert.InDelta(t, base.Corr, es.Corr, 1e-12)

	scaledObs := make([]float64, len(obs))
	for i, v := range obs {
		scaledObs[i] = 0.25*v - 2.0
	}
	es, err = ComputeErrorStats(pred, scaledObs)
	assert.NoError(t, err)
	assert.InDelta(t, base.Corr, es.Corr, 1e-12)
}

func TestComputeErrorStats_Slope(t *testing.T) {
	// obs = 2*pred exactly, so regressing obs on pred gives slope 2
	pred := []float64{1, 2, 3, 4, 5}
	obs := []float64{2, 4, 6, 8, 10}
	es, err := ComputeErrorStats(pred, obs)
	assert.NoError(t, err)
	assert.InDelta(t, 2.0, es.Slope, 1e-12)
}

func TestComputeErrorStats_InvalidInput(t *testing.T) {
	_, err := ComputeErrorStats([]float64{1, 2}, []float64{1})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = ComputeErrorStats(nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMaskPairs(t *testing.T) {
	pred := []float64{1, 2, math.NaN(), 4, 5}
	obs := []float64{1, math.NaN(), 3, 4, 5}
	mask := []bool{true, true, true, false, true}

	p, o, err := MaskPairs(pred, obs, mask)
	assert.NoError(t, err)
	assert.Equal(t, []float64{1, 5}, p)
	assert.Equal(t, []float64{1, 5}, o)

	_, _, err = MaskPairs(pred, obs, []bool{true})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestScorePredictor(t *testing.T) {
	pred := []float64{1, 2, 3, 4}
	obs := []float64{1, 2, 3, math.NaN()}
	row, err := ScorePredictor("ensemble", pred, obs, nil)
	assert.NoError(t, err)
	assert.Equal(t, "ensemble", row.Predictor)
	assert.Equal(t, 3, row.N)
	assert.Equal(t, 0.0, row.Stats.RMSE)
}

func TestTaylorStats_Identity(t *testing.T) {
	obs := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	te, err := TaylorStats("self", obs, obs)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, te.Corr, 1e-12)
	assert.InDelta(t, 0.0, te.CRMSE, 1e-12)
}

func TestTaylorStats_LawOfCosines(t *testing.T) {
	pred := []float64{1, 4, 2, 8, 5, 7, 3, 6}
	obs := []float64{2, 5, 1, 9, 6, 6, 2, 7}
	te, err := TaylorStats("m", pred, obs)
	assert.NoError(t, err)

	// population standard deviations to match CRMSE's 1/n normalization
	sdP := popStdDev(pred)
	sdO := popStdDev(obs)
	want := math.Sqrt(sdP*sdP + sdO*sdO - 2*sdP*sdO*te.Corr)
	assert.InDelta(t, want, te.CRMSE, 1e-9)
}

func popStdDev(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m += v
	}
	m /= float64(len(x))
	s := 0.0
	for _, v := range x {
		s += (v - m) * (v - m)
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestDiurnalComposite(t *testing.T) {
	base := time.Date(2003, 7, 1, 0, 0, 0, 0, time.UTC)
	var times []time.Time
	var vals []float64
	// two days of half-hourly data, value = slot index on both days
	for d := 0; d < 2; d++ {
		for s := 0; s < 48; s++ {
			times = append(times, base.AddDate(0, 0, d).Add(time.Duration(s)*30*time.Minute))
			vals = append(vals, float64(s))
		}
	}
	comp, err := DiurnalComposite(times, vals, nil, 48)
	assert.NoError(t, err)
	for s := 0; s < 48; s++ {
		assert.InDelta(t, float64(s), comp[s], 1e-12)
	}
}

// A slot with no acceptable data must stay NaN, never zero.
func TestDiurnalComposite_EmptySlotIsNaN(t *testing.T) {
	base := time.Date(2003, 7, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(30 * time.Minute)}
	vals := []float64{5, 6}
	mask := []bool{true, false}

	comp, err := DiurnalComposite(times, vals, mask, 48)
	assert.NoError(t, err)
	assert.Equal(t, 5.0, comp[0])
	assert.True(t, math.IsNaN(comp[1]))
	for s := 2; s < 48; s++ {
		if !math.IsNaN(comp[s]) {
			t.Fatalf("slot %d should be NaN, got %v", s, comp[s])
		}
	}
}

func TestDiurnalComposite_BadSlots(t *testing.T) {
	_, err := DiurnalComposite(nil, nil, nil, 7)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestResiduals(t *testing.T) {
	out, err := Residuals([]float64{3, 5}, []float64{1, 10})
	assert.NoError(t, err)
	assert.Equal(t, []float64{2, -5}, out)

	_, err = Residuals([]float64{1}, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
