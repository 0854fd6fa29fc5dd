package main

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const plotW = 8 * vg.Inch
const plotH = 5 * vg.Inch

func xyPoints(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ys))
	for i, y := range ys {
		if math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: y})
	}
	return pts
}

// PlotSeriesBand draws the posterior credible band (lower, median, upper
// lines) with the observations scattered on top.
func PlotSeriesBand(path, title string, band CredibleBand, obs []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time index"
	p.Y.Label.Text = "value"

	if err := plotutil.AddLines(p,
		"2.5%", xyPoints(band.Lower),
		"median", xyPoints(band.Median),
		"97.5%", xyPoints(band.Upper),
	); err != nil {
		return err
	}
	if obs != nil {
		if err := plotutil.AddScatters(p, "observed", xyPoints(obs)); err != nil {
			return err
		}
	}
	return p.Save(plotW, plotH, path)
}

// PlotScatter draws prediction against observation with the 1:1 line.
func PlotScatter(path, name string, pred, obs []float64) error {
	if len(pred) != len(obs) {
		return fmt.Errorf("%w: length mismatch %d vs %d", ErrInvalidInput, len(pred), len(obs))
	}
	p := plot.New()
	p.Title.Text = name + " vs observed"
	p.X.Label.Text = name
	p.Y.Label.Text = "observed"

	pts := make(plotter.XYs, 0, len(pred))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range pred {
		if math.IsNaN(pred[i]) || math.IsNaN(obs[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: pred[i], Y: obs[i]})
		lo = math.Min(lo, math.Min(pred[i], obs[i]))
		hi = math.Max(hi, math.Max(pred[i], obs[i]))
	}
	if err := plotutil.AddScatters(p, name, pts); err != nil {
		return err
	}
	oneToOne := plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}}
	if err := plotutil.AddLines(p, "1:1", oneToOne); err != nil {
		return err
	}
	return p.Save(plotW, plotH, path)
}

// PlotTaylor draws a Taylor diagram as a quarter-polar scatter: radius is
// the predictor's standard deviation, angle encodes its correlation with the
// reference, and distance from the reference point on the x axis is the
// centered RMS difference.
func PlotTaylor(path string, entries []TaylorEntry, refStdDev float64) error {
	p := plot.New()
	p.Title.Text = "Taylor diagram"
	p.X.Label.Text = "stddev * corr"
	p.Y.Label.Text = "stddev * sqrt(1-corr^2)"

	pts := make(plotter.XYs, 0, len(entries)+1)
	labels := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		c := math.Max(-1, math.Min(1, e.Corr))
		pts = append(pts, plotter.XY{
			X: e.StdDev * c,
			Y: e.StdDev * math.Sqrt(1-c*c),
		})
		labels = append(labels, e.Predictor)
	}
	pts = append(pts, plotter.XY{X: refStdDev, Y: 0})
	labels = append(labels, "observed")

	if err := plotutil.AddScatters(p, "predictors", pts); err != nil {
		return err
	}
	lab, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
	if err != nil {
		return err
	}
	p.Add(lab)
	return p.Save(plotW, plotH, path)
}

// PlotDiurnal draws mean diurnal cycles, one line per named series.
func PlotDiurnal(path string, names []string, cycles [][]float64) error {
	if len(names) != len(cycles) {
		return fmt.Errorf("%w: %d names vs %d cycles", ErrInvalidInput, len(names), len(cycles))
	}
	p := plot.New()
	p.Title.Text = "Mean diurnal cycle"
	p.X.Label.Text = "time-of-day slot"
	p.Y.Label.Text = "NEE"

	args := make([]interface{}, 0, 2*len(names))
	for i, n := range names {
		args = append(args, n, xyPoints(cycles[i]))
	}
	if err := plotutil.AddLines(p, args...); err != nil {
		return err
	}
	return p.Save(plotW, plotH, path)
}

// PlotGlobalWavelet draws the time-averaged wavelet power per scale.
func PlotGlobalWavelet(path string, spec *WaveletSpectrum) error {
	p := plot.New()
	p.Title.Text = "Global wavelet power of model error"
	p.X.Label.Text = "scale (time steps)"
	p.Y.Label.Text = "power"

	gp := spec.GlobalPower()
	pts := make(plotter.XYs, len(gp))
	for i := range gp {
		pts[i] = plotter.XY{X: spec.Scales[i], Y: gp[i]}
	}
	if err := plotutil.AddLines(p, "power", pts); err != nil {
		return err
	}
	return p.Save(plotW, plotH, path)
}

// PlotPartialDependence draws one partial-dependence curve.
func PlotPartialDependence(path, driver string, grid, curve []float64) error {
	if len(grid) != len(curve) {
		return fmt.Errorf("%w: grid and curve lengths differ", ErrInvalidInput)
	}
	p := plot.New()
	p.Title.Text = "Partial dependence: " + driver
	p.X.Label.Text = driver
	p.Y.Label.Text = "predicted |normalized error|"

	pts := make(plotter.XYs, len(grid))
	for i := range grid {
		pts[i] = plotter.XY{X: grid[i], Y: curve[i]}
	}
	if err := plotutil.AddLines(p, driver, pts); err != nil {
		return err
	}
	return p.Save(plotW, plotH, path)
}
