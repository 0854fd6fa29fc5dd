package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DrawInits derives chain starting points by resampling the observed entries
// of y with replacement: the process precision from the variance of the
// first differences of the resample, the observation precision from the
// variance of the resample itself. Distinct chains therefore start from
// distinct but data-scaled precisions.
func DrawInits(y []float64, chains int, rng *rand.Rand) ([]ChainInit, error) {
	var obs []float64
	for _, v := range y {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	if len(obs) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 observations to derive initial conditions, got %d",
			ErrInvalidInput, len(obs))
	}

	inits := make([]ChainInit, chains)
	samp := make([]float64, len(obs))
	diffs := make([]float64, len(obs)-1)
	for c := 0; c < chains; c++ {
		for i := range samp {
			samp[i] = obs[rng.IntN(len(obs))]
		}
		for i := range diffs {
			diffs[i] = samp[i+1] - samp[i]
		}
		vSamp := stat.Variance(samp, nil)
		vDiff := stat.Variance(diffs, nil)
		if vSamp <= 0 {
			vSamp = 1e-6
		}
		if vDiff <= 0 {
			vDiff = 1e-6
		}
		inits[c] = ChainInit{TauObs: 5.0 / vSamp, TauAdd: 1.0 / vDiff}
	}
	return inits, nil
}

// initialState fills the latent sequence from the observations, linearly
// interpolating across gaps and holding the nearest observed value at the
// ends. Purely a starting point for the sweeps.
func initialState(y []float64) []float64 {
	n := len(y)
	x := make([]float64, n)
	copy(x, y)

	prev := -1
	for i := 0; i < n; i++ {
		if math.IsNaN(y[i]) {
			continue
		}
		if prev < 0 {
			for j := 0; j < i; j++ {
				x[j] = y[i]
			}
		} else if i-prev > 1 {
			step := (y[i] - y[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				x[j] = y[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev < 0 {
		// no observations at all: start flat at zero
		for i := range x {
			x[i] = 0
		}
	} else {
		for j := prev + 1; j < n; j++ {
			x[j] = y[prev]
		}
	}
	return x
}

// gibbsChain runs one chain of the sampler for sweeps iterations, recording
// every sweep. y is log scale with NaN marking absent observations; absent
// entries contribute no likelihood term, so the corresponding x is tied to
// its neighbours only through the random walk.
func gibbsChain(y []float64, m RandomWalkModel, init ChainInit, sweeps int, rng *rand.Rand) ChainSamples {
	n := len(y)
	x := initialState(y)
	tauObs := init.TauObs
	tauAdd := init.TauAdd

	cs := ChainSamples{
		X:      make([][]float64, sweeps),
		TauObs: make([]float64, sweeps),
		TauAdd: make([]float64, sweeps),
	}

	nObs := 0
	for _, v := range y {
		if !math.IsNaN(v) {
			nObs++
		}
	}

	for s := 0; s < sweeps; s++ {
		// Latent states, each from its Normal full conditional: precision is
		// the sum of the contributions that touch x[i], mean their
		// precision-weighted average.
		for i := 0; i < n; i++ {
			P := 0.0
			M := 0.0
			if i == 0 {
				P += m.TauIC
				M += m.TauIC * m.XIC
			} else {
				P += tauAdd
				M += tauAdd * x[i-1]
			}
			if i < n-1 {
				P += tauAdd
				M += tauAdd * x[i+1]
			}
			if !math.IsNaN(y[i]) {
				P += tauObs
				M += tauObs * y[i]
			}
			x[i] = distuv.Normal{Mu: M / P, Sigma: 1.0 / math.Sqrt(P), Src: rng}.Rand()
		}

		// Observation precision from its Gamma full conditional, updated by
		// the sum of squared observation residuals.
		sseObs := 0.0
		for i := 0; i < n; i++ {
			if math.IsNaN(y[i]) {
				continue
			}
			d := y[i] - x[i]
			sseObs += d * d
		}
		tauObs = distuv.Gamma{
			Alpha: m.AObs + float64(nObs)/2.0,
			Beta:  m.RObs + sseObs/2.0,
			Src:   rng,
		}.Rand()

		// Process precision, updated by the sum of squared transition
		// residuals.
		sseAdd := 0.0
		for i := 1; i < n; i++ {
			d := x[i] - x[i-1]
			sseAdd += d * d
		}
		tauAdd = distuv.Gamma{
			Alpha: m.AAdd + float64(n-1)/2.0,
			Beta:  m.RAdd + sseAdd/2.0,
			Src:   rng,
		}.Rand()

		xs := make([]float64, n)
		copy(xs, x)
		cs.X[s] = xs
		cs.TauObs[s] = tauObs
		cs.TauAdd[s] = tauAdd
	}
	return cs
}

// GibbsSample fits the random-walk state-space model to a log-scale
// observation vector (NaN = absent) by Gibbs sampling. Chains are
// embarrassingly parallel; with opts.Parallel they run on a worker pool with
// per-chain seeds drawn from a master RNG so results are reproducible for a
// fixed opts.Seed.
func GibbsSample(y []float64, m RandomWalkModel, opts GibbsOptions) (*Posterior, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("%w: empty observation vector", ErrInvalidInput)
	}
	if opts.Chains <= 0 {
		return nil, fmt.Errorf("%w: need at least one chain", ErrInvalidInput)
	}
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive", ErrInvalidInput)
	}
	if opts.BurnIn < 0 {
		return nil, fmt.Errorf("%w: burn-in cannot be negative", ErrInvalidInput)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	master := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))

	inits := opts.Inits
	if inits == nil {
		var err error
		inits, err = DrawInits(y, opts.Chains, master)
		if err != nil {
			return nil, err
		}
	}
	if len(inits) != opts.Chains {
		return nil, fmt.Errorf("%w: %d initial conditions for %d chains", ErrInvalidInput, len(inits), opts.Chains)
	}
	for c, in := range inits {
		if in.TauObs <= 0 || in.TauAdd <= 0 {
			return nil, fmt.Errorf("%w: chain %d initial precisions must be positive", ErrInvalidInput, c)
		}
	}

	// Per-chain seeds so chains never share an RNG.
	seeds := make([]uint64, opts.Chains)
	for c := range seeds {
		seeds[c] = master.Uint64()
	}

	sweeps := opts.BurnIn + opts.Iterations
	post := &Posterior{
		Chains: make([]ChainSamples, opts.Chains),
		BurnIn: opts.BurnIn,
		N:      len(y),
	}

	if !opts.Parallel || opts.Chains == 1 {
		for c := 0; c < opts.Chains; c++ {
			rng := rand.New(rand.NewPCG(seeds[c], seeds[c]^0x9e3779b97f4a7c15))
			post.Chains[c] = gibbsChain(y, m, inits[c], sweeps, rng)
		}
		return post, nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > opts.Chains {
		numWorkers = opts.Chains
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for c := range jobs {
				rng := rand.New(rand.NewPCG(seeds[c], seeds[c]^0x9e3779b97f4a7c15))
				post.Chains[c] = gibbsChain(y, m, inits[c], sweeps, rng)
			}
		}()
	}

	for c := 0; c < opts.Chains; c++ {
		jobs <- c
	}
	close(jobs)
	wg.Wait()

	return post, nil
}
