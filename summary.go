package main

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// empiricalQuantile returns the empirical q-quantile of samples (0 <= q <= 1)
// using linear interpolation between order statistics.
func empiricalQuantile(samples []float64, q float64) float64 {
	n := len(samples)
	if n == 0 {
		return math.NaN()
	}

	tmp := make([]float64, n)
	copy(tmp, samples)
	sort.Float64s(tmp)

	if q <= 0 {
		return tmp[0]
	}
	if q >= 1 {
		return tmp[n-1]
	}

	pos := q * float64(n-1)
	idxBelow := int(math.Floor(pos))
	idxAbove := int(math.Ceil(pos))

	if idxAbove == idxBelow {
		return tmp[idxBelow]
	}

	weight := pos - float64(idxBelow)
	return tmp[idxBelow]*(1.0-weight) + tmp[idxAbove]*weight
}

// productionSweeps returns the post-burn-in sweep count per chain, erroring
// when burn-in would swallow a whole chain.
func (p *Posterior) productionSweeps() (int, error) {
	if len(p.Chains) == 0 {
		return 0, fmt.Errorf("%w: posterior has no chains", ErrInvalidInput)
	}
	total := len(p.Chains[0].TauObs)
	if total <= p.BurnIn {
		return 0, fmt.Errorf("%w: burn-in %d >= chain length %d", ErrInvalidInput, p.BurnIn, total)
	}
	return total - p.BurnIn, nil
}

// Summarize extracts the pointwise 2.5/50/97.5 percentile credible band of
// the latent state, pooling production sweeps across chains and
// back-transforming from the log domain to the original scale by
// exponentiation. Dates may be nil.
func (p *Posterior) Summarize(dates []time.Time) (CredibleBand, error) {
	prod, err := p.productionSweeps()
	if err != nil {
		return CredibleBand{}, err
	}

	band := CredibleBand{
		Dates:  dates,
		Lower:  make([]float64, p.N),
		Median: make([]float64, p.N),
		Upper:  make([]float64, p.N),
	}

	pool := make([]float64, 0, prod*len(p.Chains))
	for i := 0; i < p.N; i++ {
		pool = pool[:0]
		for _, c := range p.Chains {
			for s := p.BurnIn; s < len(c.X); s++ {
				pool = append(pool, c.X[s][i])
			}
		}
		band.Lower[i] = math.Exp(empiricalQuantile(pool, 0.025))
		band.Median[i] = math.Exp(empiricalQuantile(pool, 0.5))
		band.Upper[i] = math.Exp(empiricalQuantile(pool, 0.975))
	}
	return band, nil
}

// SummarizeSD converts pooled production draws of a precision parameter to
// the standard-deviation scale and summarises them. which selects "obs" or
// "add".
func (p *Posterior) SummarizeSD(which string) (PosteriorScalar, error) {
	if _, err := p.productionSweeps(); err != nil {
		return PosteriorScalar{}, err
	}

	var pool []float64
	for _, c := range p.Chains {
		taus := c.TauObs
		if which == "add" {
			taus = c.TauAdd
		} else if which != "obs" {
			return PosteriorScalar{}, fmt.Errorf("%w: unknown precision %q", ErrInvalidInput, which)
		}
		for s := p.BurnIn; s < len(taus); s++ {
			pool = append(pool, 1.0/math.Sqrt(taus[s]))
		}
	}

	sum := 0.0
	for _, v := range pool {
		sum += v
	}
	return PosteriorScalar{
		Mean:   sum / float64(len(pool)),
		Lower:  empiricalQuantile(pool, 0.025),
		Median: empiricalQuantile(pool, 0.5),
		Upper:  empiricalQuantile(pool, 0.975),
	}, nil
}
