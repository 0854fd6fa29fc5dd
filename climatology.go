package main

import (
	"fmt"
	"math"
	"time"
)

// AnnualCycle is a multi-year mean annual cycle of a half-hourly flux,
// bucketed by (day of year, time-of-day slot). Buckets that never saw an
// acceptable observation hold NaN; the absence must propagate rather than
// become zero.
type AnnualCycle struct {
	SlotsPerDay int
	// Mean[doy-1][slot], doy in 1..366
	Mean [][]float64
}

// Climatology averages the observed NEE of several comparison years into one
// annual cycle. The evaluation year must not be in the input; use
// ClimatologyExcluding when the caller holds a mixed set of years.
func Climatology(years []*FluxTable, maxQC, slotsPerDay int) (*AnnualCycle, error) {
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: no comparison years", ErrInvalidInput)
	}
	if slotsPerDay <= 0 || 1440%slotsPerDay != 0 {
		return nil, fmt.Errorf("%w: slotsPerDay %d must divide 1440", ErrInvalidInput, slotsPerDay)
	}
	minutesPerSlot := 1440 / slotsPerDay

	sums := make([][]float64, 366)
	counts := make([][]int, 366)
	for d := range sums {
		sums[d] = make([]float64, slotsPerDay)
		counts[d] = make([]int, slotsPerDay)
	}

	for _, ft := range years {
		mask := ft.QualityMask(maxQC)
		for i, r := range ft.Records {
			if !mask[i] {
				continue
			}
			d := r.Time.YearDay() - 1
			s := (r.Time.Hour()*60 + r.Time.Minute()) / minutesPerSlot
			sums[d][s] += r.NEE
			counts[d][s]++
		}
	}

	mean := make([][]float64, 366)
	for d := range mean {
		mean[d] = make([]float64, slotsPerDay)
		for s := range mean[d] {
			if counts[d][s] == 0 {
				mean[d][s] = math.NaN()
			} else {
				mean[d][s] = sums[d][s] / float64(counts[d][s])
			}
		}
	}
	return &AnnualCycle{SlotsPerDay: slotsPerDay, Mean: mean}, nil
}

// ClimatologyExcluding drops any table whose first record falls in the
// evaluation year, then averages the rest. The climatology must be blind to
// the year it is later scored against.
func ClimatologyExcluding(years []*FluxTable, evalYear, maxQC, slotsPerDay int) (*AnnualCycle, error) {
	var kept []*FluxTable
	for _, ft := range years {
		if len(ft.Records) > 0 && ft.Records[0].Time.Year() == evalYear {
			continue
		}
		kept = append(kept, ft)
	}
	return Climatology(kept, maxQC, slotsPerDay)
}

// Predict looks up the cycle value for each timestamp, producing the
// climatology "model" trajectory aligned with an evaluation year.
func (c *AnnualCycle) Predict(times []time.Time) []float64 {
	minutesPerSlot := 1440 / c.SlotsPerDay
	out := make([]float64, len(times))
	for i, tm := range times {
		d := tm.YearDay() - 1
		s := (tm.Hour()*60 + tm.Minute()) / minutesPerSlot
		out[i] = c.Mean[d][s]
	}
	return out
}
