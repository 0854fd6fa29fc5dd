package main

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidInput marks malformed input to the statistics computers: length
// mismatches, empty sequences, non-positive values where positivity is part
// of the model.
var ErrInvalidInput = errors.New("invalid input")

// ComputeErrorStats returns the four skill scores for an aligned
// (prediction, observation) pair. Both sequences must have equal, non-zero
// length and no missing values; callers pre-mask with MaskPairs. The slope is
// the OLS coefficient of observation regressed on prediction.
func ComputeErrorStats(pred, obs []float64) (ErrorStats, error) {
	if len(pred) != len(obs) {
		return ErrorStats{}, fmt.Errorf("%w: length mismatch %d vs %d", ErrInvalidInput, len(pred), len(obs))
	}
	if len(pred) == 0 {
		return ErrorStats{}, fmt.Errorf("%w: empty sequences", ErrInvalidInput)
	}

	var sqSum, biasSum float64
	for i := range pred {
		d := pred[i] - obs[i]
		sqSum += d * d
		biasSum += d
	}
	n := float64(len(pred))

	_, slope := stat.LinearRegression(pred, obs, nil, false)

	return ErrorStats{
		RMSE:  math.Sqrt(sqSum / n),
		Bias:  biasSum / n,
		Corr:  stat.Correlation(pred, obs, nil),
		Slope: slope,
	}, nil
}

// MaskPairs returns the (prediction, observation) pairs where mask is true
// and both values are present. mask may be nil to select on presence alone.
func MaskPairs(pred, obs []float64, mask []bool) ([]float64, []float64, error) {
	if len(pred) != len(obs) {
		return nil, nil, fmt.Errorf("%w: length mismatch %d vs %d", ErrInvalidInput, len(pred), len(obs))
	}
	if mask != nil && len(mask) != len(obs) {
		return nil, nil, fmt.Errorf("%w: mask length %d does not match %d", ErrInvalidInput, len(mask), len(obs))
	}
	var p, o []float64
	for i := range pred {
		if mask != nil && !mask[i] {
			continue
		}
		if math.IsNaN(pred[i]) || math.IsNaN(obs[i]) {
			continue
		}
		p = append(p, pred[i])
		o = append(o, obs[i])
	}
	return p, o, nil
}

// ScorePredictor masks, scores and labels one candidate predictor. This is
// the whole contract of the error-statistics table: each row is recomputed
// fresh from the same quality mask.
func ScorePredictor(name string, pred, obs []float64, mask []bool) (PredictorStats, error) {
	p, o, err := MaskPairs(pred, obs, mask)
	if err != nil {
		return PredictorStats{}, err
	}
	es, err := ComputeErrorStats(p, o)
	if err != nil {
		return PredictorStats{}, fmt.Errorf("predictor %s: %w", name, err)
	}
	return PredictorStats{Predictor: name, Stats: es, N: len(p)}, nil
}

// TaylorStats summarises a predictor against the reference observations for
// the Taylor diagram. The centered RMS difference removes both means, so
// CRMSE^2 = sdPred^2 + sdObs^2 - 2*sdPred*sdObs*corr holds by construction.
func TaylorStats(name string, pred, obs []float64) (TaylorEntry, error) {
	if len(pred) != len(obs) || len(pred) == 0 {
		return TaylorEntry{}, fmt.Errorf("%w: need equal non-empty sequences", ErrInvalidInput)
	}
	mp := stat.Mean(pred, nil)
	mo := stat.Mean(obs, nil)
	var crm float64
	for i := range pred {
		d := (pred[i] - mp) - (obs[i] - mo)
		crm += d * d
	}
	return TaylorEntry{
		Predictor: name,
		StdDev:    stat.StdDev(pred, nil),
		Corr:      stat.Correlation(pred, obs, nil),
		CRMSE:     math.Sqrt(crm / float64(len(pred))),
	}, nil
}

// DiurnalComposite averages a half-hourly series by time-of-day slot under
// the quality mask. Slots with no acceptable data stay NaN rather than being
// coerced to zero.
func DiurnalComposite(times []time.Time, vals []float64, mask []bool, slotsPerDay int) ([]float64, error) {
	if len(times) != len(vals) {
		return nil, fmt.Errorf("%w: %d timestamps vs %d values", ErrInvalidInput, len(times), len(vals))
	}
	if slotsPerDay <= 0 || 1440%slotsPerDay != 0 {
		return nil, fmt.Errorf("%w: slotsPerDay %d must divide 1440", ErrInvalidInput, slotsPerDay)
	}
	minutesPerSlot := 1440 / slotsPerDay

	sums := make([]float64, slotsPerDay)
	counts := make([]int, slotsPerDay)
	for i, tm := range times {
		if mask != nil && !mask[i] {
			continue
		}
		if math.IsNaN(vals[i]) {
			continue
		}
		slot := (tm.Hour()*60 + tm.Minute()) / minutesPerSlot
		sums[slot] += vals[i]
		counts[slot]++
	}

	out := make([]float64, slotsPerDay)
	for s := range out {
		if counts[s] == 0 {
			out[s] = math.NaN()
		} else {
			out[s] = sums[s] / float64(counts[s])
		}
	}
	return out, nil
}

// Residuals returns pred-obs elementwise.
func Residuals(pred, obs []float64) ([]float64, error) {
	if len(pred) != len(obs) {
		return nil, fmt.Errorf("%w: length mismatch %d vs %d", ErrInvalidInput, len(pred), len(obs))
	}
	out := make([]float64, len(pred))
	for i := range pred {
		out[i] = pred[i] - obs[i]
	}
	return out, nil
}
