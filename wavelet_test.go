package main

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScales(t *testing.T) {
	scales := DefaultScales(128, 1)
	assert.NotEmpty(t, scales)
	assert.Equal(t, 2.0, scales[0])
	for j := 1; j < len(scales); j++ {
		assert.Greater(t, scales[j], scales[j-1])
	}
	assert.LessOrEqual(t, scales[len(scales)-1], 64.0)
}

// A pure sinusoid concentrates global wavelet power near the scale matching
// its period (for omega0=6 the Morlet scale is close to the Fourier period).
func TestMorletPower_PeaksAtSinusoidPeriod(t *testing.T) {
	n := 256
	period := 16.0
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * float64(i) / period)
	}

	scales := DefaultScales(n, 1)
	spec, err := MorletPower(x, scales, 1)
	assert.NoError(t, err)

	gp := spec.GlobalPower()
	best := 0
	for j := range gp {
		if gp[j] > gp[best] {
			best = j
		}
	}
	ratio := spec.Scales[best] / period
	if ratio < 0.7 || ratio > 1.4 {
		t.Fatalf("power peaked at scale %v for period %v (ratio %v)", spec.Scales[best], period, ratio)
	}
}

// A lower-frequency signal must peak at a larger scale.
func TestMorletPower_ScaleOrdering(t *testing.T) {
	n := 256
	peakScale := func(period float64) float64 {
		x := make([]float64, n)
		for i := range x {
			x[i] = math.Sin(2 * math.Pi * float64(i) / period)
		}
		scales := DefaultScales(n, 1)
		spec, err := MorletPower(x, scales, 1)
		assert.NoError(t, err)
		gp := spec.GlobalPower()
		best := 0
		for j := range gp {
			if gp[j] > gp[best] {
				best = j
			}
		}
		return spec.Scales[best]
	}
	assert.Less(t, peakScale(8), peakScale(32))
}

func TestMorletPower_ConstantSeriesHasNoPower(t *testing.T) {
	x := make([]float64, 64)
	for i := range x {
		x[i] = 5.0
	}
	spec, err := MorletPower(x, DefaultScales(len(x), 1), 1)
	assert.NoError(t, err)
	for _, row := range spec.Power {
		for _, v := range row {
			assert.InDelta(t, 0.0, v, 1e-18)
		}
	}
}

func TestMorletPower_RejectsMissingValues(t *testing.T) {
	x := []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8}
	_, err := MorletPower(x, DefaultScales(len(x), 1), 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMorletPower_Invalid(t *testing.T) {
	_, err := MorletPower([]float64{1, 2}, []float64{2}, 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = MorletPower([]float64{1, 2, 3, 4}, nil, 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = MorletPower([]float64{1, 2, 3, 4}, []float64{2}, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestFillMissing(t *testing.T) {
	x := []float64{1, math.NaN(), 3}
	out := FillMissing(x, 2)
	assert.Equal(t, []float64{1, 2, 3}, out)
	// original untouched
	assert.True(t, math.IsNaN(x[1]))
}
