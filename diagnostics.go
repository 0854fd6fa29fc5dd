package main

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"
)

// PSRF computes the Gelman-Rubin potential scale reduction factor for one
// scalar parameter from two or more chains of equal length. Values near 1
// indicate the chains have mixed; this is reported for a human to inspect,
// never used as an automatic convergence gate.
func PSRF(chains [][]float64) (float64, error) {
	if len(chains) < 2 {
		return 0, fmt.Errorf("%w: PSRF needs at least 2 chains, got %d", ErrInvalidInput, len(chains))
	}
	n := len(chains[0])
	if n < 2 {
		return 0, fmt.Errorf("%w: chains must have at least 2 draws", ErrInvalidInput)
	}
	for i, c := range chains {
		if len(c) != n {
			return 0, fmt.Errorf("%w: chain %d has %d draws, expected %d", ErrInvalidInput, i, len(c), n)
		}
	}

	m := float64(len(chains))
	nf := float64(n)

	means := make([]float64, len(chains))
	w := 0.0
	for i, c := range chains {
		means[i] = stat.Mean(c, nil)
		w += stat.Variance(c, nil)
	}
	w /= m

	grand := stat.Mean(means, nil)
	b := 0.0
	for _, mu := range means {
		d := mu - grand
		b += d * d
	}
	b *= nf / (m - 1)

	if w == 0 {
		// identical constant chains
		return 1, nil
	}
	varPlus := (nf-1)/nf*w + b/nf
	return math.Sqrt(varPlus / w), nil
}

// paramChains extracts the post-burn-in draws of a precision parameter, one
// slice per chain.
func (p *Posterior) paramChains(which string) ([][]float64, error) {
	if _, err := p.productionSweeps(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(p.Chains))
	for i, c := range p.Chains {
		taus := c.TauObs
		switch which {
		case "obs":
		case "add":
			taus = c.TauAdd
		default:
			return nil, fmt.Errorf("%w: unknown precision %q", ErrInvalidInput, which)
		}
		out[i] = taus[p.BurnIn:]
	}
	return out, nil
}

// ConvergenceReport holds the PSRF of both precision parameters.
type ConvergenceReport struct {
	PSRFTauObs float64
	PSRFTauAdd float64
}

// Diagnose computes the convergence report for a multi-chain posterior.
func (p *Posterior) Diagnose() (ConvergenceReport, error) {
	var rep ConvergenceReport
	co, err := p.paramChains("obs")
	if err != nil {
		return rep, err
	}
	ca, err := p.paramChains("add")
	if err != nil {
		return rep, err
	}
	if rep.PSRFTauObs, err = PSRF(co); err != nil {
		return rep, err
	}
	if rep.PSRFTauAdd, err = PSRF(ca); err != nil {
		return rep, err
	}
	return rep, nil
}

// PrintConvergence writes a short diagnostic table. The decision to draw more
// samples stays with the analyst.
func PrintConvergence(w io.Writer, rep ConvergenceReport) {
	fmt.Fprintln(w, "=== Convergence Diagnostics (Gelman-Rubin) ===")
	fmt.Fprintf(w, "%-12s %8s\n", "Parameter", "PSRF")
	fmt.Fprintf(w, "%-12s %8.4f\n", "tau_obs", rep.PSRFTauObs)
	fmt.Fprintf(w, "%-12s %8.4f\n", "tau_add", rep.PSRFTauAdd)
	if rep.PSRFTauObs > 1.1 || rep.PSRFTauAdd > 1.1 {
		fmt.Fprintln(w, "PSRF above 1.1: inspect traces and consider drawing more samples")
	}
}

// PrintErrorStatsTable writes the error-statistics table for all scored
// predictors.
func PrintErrorStatsTable(w io.Writer, rows []PredictorStats) {
	fmt.Fprintln(w, "=== Model Assessment: Error Statistics ===")
	fmt.Fprintf(w, "%-16s %10s %10s %8s %8s %7s\n", "Predictor", "RMSE", "Bias", "Corr", "Slope", "N")
	for _, r := range rows {
		fmt.Fprintf(w, "%-16s %10.4f %10.4f %8.4f %8.4f %7d\n",
			r.Predictor, r.Stats.RMSE, r.Stats.Bias, r.Stats.Corr, r.Stats.Slope, r.N)
	}
}
