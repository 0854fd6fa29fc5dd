package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/hhkbp2/go-logging"
)

func main() {
	parser := argparse.NewParser("fluxassess",
		"Model assessment against flux-tower observations and random-walk state-space estimation")

	mode := parser.Selector("m", "mode", []string{"assess", "statespace"}, &argparse.Options{
		Default: "assess",
		Help:    "Pipeline to run: model assessment (assess) or state-space estimation (statespace)"})

	ensemblePath := parser.String("", "ensemble", &argparse.Options{
		Help: "Ensemble output CSV (STEP, MEMBER, variables)"})

	filterPath := parser.String("", "filter", &argparse.Options{
		Help: "Particle-filter output CSV, same layout as the ensemble"})

	fluxPath := parser.String("", "flux", &argparse.Options{
		Help: "Evaluation-year flux-tower CSV (TIMESTAMP, NEE, QC, optional TA/PAR/VPD)"})

	compPaths := parser.StringList("", "comp_year", &argparse.Options{
		Help: "Comparison-year flux CSV, one flag per year; feeds the climatology baseline"})

	seriesPath := parser.String("", "series", &argparse.Options{
		Help: "Univariate (DATE, VALUE) series CSV for the state-space exercise"})

	variable := parser.String("", "var", &argparse.Options{
		Default: "NEE",
		Help:    "Ensemble variable to assess"})

	outDir := parser.String("o", "out", &argparse.Options{
		Default: "output",
		Help:    "Output directory"})

	configPath := parser.String("c", "config", &argparse.Options{
		Default: "",
		Help:    "YAML configuration file"})

	plots := parser.Flag("p", "plots", &argparse.Options{
		Help: "Also render PNG plots"})

	logLevel := parser.Selector("", "log", []string{"DEBUG", "INFO", "WARN", "ERROR"}, &argparse.Options{
		Default: "INFO",
		Help:    "Log level"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger := logging.GetLogger("fluxassess")
	switch *logLevel {
	case "DEBUG":
		logger.SetLevel(logging.LevelDebug)
	case "INFO":
		logger.SetLevel(logging.LevelInfo)
	case "WARN":
		logger.SetLevel(logging.LevelWarn)
	case "ERROR":
		logger.SetLevel(logging.LevelError)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, os.ModePerm); err != nil {
		logger.Errorf("create output directory: %v", err)
		os.Exit(1)
	}

	switch *mode {
	case "assess":
		err = runAssessMode(logger, cfg, *ensemblePath, *filterPath, *fluxPath, *compPaths, *variable, *outDir, *plots)
	case "statespace":
		err = runStateSpaceMode(logger, cfg, *seriesPath, *outDir, *plots)
	}
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("done")
}

func runAssessMode(logger logging.Logger, cfg *Config, ensemblePath, filterPath, fluxPath string,
	compPaths []string, variable, outDir string, plots bool) error {

	if ensemblePath == "" || filterPath == "" || fluxPath == "" {
		return fmt.Errorf("assess mode needs --ensemble, --filter and --flux")
	}

	// 1. Load the model outputs and the observed records
	logger.Infof("loading ensemble output from %s", ensemblePath)
	ens, err := LoadEnsembleCSV(ensemblePath)
	if err != nil {
		return err
	}
	logger.Infof("loaded %d steps x %d members x %d variables", ens.Steps, ens.Members, len(ens.VarNames))

	pf, err := LoadEnsembleCSV(filterPath)
	if err != nil {
		return err
	}

	eval, err := LoadFluxCSV(fluxPath)
	if err != nil {
		return err
	}
	logger.Infof("loaded %d flux records from %s", len(eval.Records), fluxPath)

	var comps []*FluxTable
	for _, p := range compPaths {
		ft, err := LoadFluxCSV(p)
		if err != nil {
			return err
		}
		comps = append(comps, ft)
	}
	if len(comps) == 0 {
		return fmt.Errorf("assess mode needs at least one --comp_year file for the climatology baseline")
	}

	// 2. Run the assessment pipeline
	res, err := RunAssessment(AssessInputs{
		Ensemble:  ens,
		Filter:    pf,
		EvalYear:  eval,
		CompYears: comps,
		Variable:  variable,
	}, cfg)
	if err != nil {
		return err
	}

	// 3. Report and persist the error-statistics table
	PrintErrorStatsTable(os.Stdout, res.Table)
	if err := WriteErrorStatsCSV(filepath.Join(outDir, "error_stats.csv"), res.Table); err != nil {
		return err
	}

	// 4. Residual diagnostics
	if res.Tree != nil {
		fmt.Println("=== Error Partition (regression tree) ===")
		fmt.Print(res.Tree.String())
	}
	if res.Forest != nil {
		if err := WriteImportanceCSV(filepath.Join(outDir, "importance.csv"),
			res.DriverSet.Names, res.Importance); err != nil {
			return err
		}
		X, _, err := AlignDrivers(res.DriverSet, maskedCopy(res.Obs, res.Mask), res.Mask)
		if err != nil {
			return err
		}
		for fi, name := range res.DriverSet.Names {
			grid, err := FeatureGrid(X, fi, 25)
			if err != nil {
				return err
			}
			curve, err := res.Forest.PartialDependence(fi, grid, X)
			if err != nil {
				return err
			}
			pdPath := filepath.Join(outDir, fmt.Sprintf("pd_%s.csv", name))
			if err := WritePartialDependenceCSV(pdPath, name, grid, curve); err != nil {
				return err
			}
			if plots {
				if err := PlotPartialDependence(filepath.Join(outDir, fmt.Sprintf("pd_%s.png", name)),
					name, grid, curve); err != nil {
					return err
				}
			}
		}
	}

	// 5. Plots
	if plots {
		logger.Infof("rendering plots to %s", outDir)
		if err := PlotScatter(filepath.Join(outDir, "scatter_ensemble.png"),
			"ensemble", maskedCopy(res.EnsMean, res.Mask), maskedCopy(res.Obs, res.Mask)); err != nil {
			return err
		}
		if err := PlotTaylor(filepath.Join(outDir, "taylor.png"), res.Taylor, res.RefStdDev); err != nil {
			return err
		}
		if err := PlotDiurnal(filepath.Join(outDir, "diurnal.png"),
			[]string{"observed", "ensemble"},
			[][]float64{res.ObsDiurn, res.EnsDiurn}); err != nil {
			return err
		}
		if res.Spectrum != nil {
			if err := PlotGlobalWavelet(filepath.Join(outDir, "wavelet.png"), res.Spectrum); err != nil {
				return err
			}
		}
	}
	return nil
}

func runStateSpaceMode(logger logging.Logger, cfg *Config, seriesPath, outDir string, plots bool) error {
	if seriesPath == "" {
		return fmt.Errorf("statespace mode needs --series")
	}

	// 1. Load and log-transform the observed series
	series, err := LoadSeriesCSV(seriesPath)
	if err != nil {
		return err
	}
	logger.Infof("loaded %d observations from %s", len(series.Values), seriesPath)

	logY, err := series.Log()
	if err != nil {
		return err
	}

	first := math.NaN()
	for _, v := range logY {
		if !math.IsNaN(v) {
			first = v
			break
		}
	}
	if math.IsNaN(first) {
		return fmt.Errorf("series has no observed values")
	}

	// 2. Fit the random-walk model under the three missing-data scenarios
	model := cfg.Model(first)
	opts := cfg.GibbsOptions()
	logger.Infof("sampling %d chains x (%d burn-in + %d production) sweeps",
		opts.Chains, opts.BurnIn, opts.Iterations)

	results, err := RunMissingDataExperiments(series.Dates, logY, model, opts, cfg.Experiment())
	if err != nil {
		return err
	}

	// 3. Persist per-scenario credible bands and the precision summary
	for _, res := range results {
		if err := WriteBandCSV(filepath.Join(outDir, "band_"+res.Name+".csv"), res.Band); err != nil {
			return err
		}
		if opts.Chains >= 2 {
			fmt.Printf("--- scenario %s ---\n", res.Name)
			PrintConvergence(os.Stdout, res.Convergence)
		}
		if plots {
			if err := PlotSeriesBand(filepath.Join(outDir, "band_"+res.Name+".png"),
				"Random walk fit: "+res.Name, res.Band, series.Values); err != nil {
				return err
			}
		}
	}
	if err := WriteScenarioSummaryCSV(filepath.Join(outDir, "scenario_summary.csv"), results); err != nil {
		return err
	}

	// 4. Report the forecast-horizon uncertainty growth
	forecast := results[len(results)-1]
	widths := forecast.Band.Width()
	if len(forecast.Removed) > 0 {
		lastObs := forecast.Removed[0] - 1
		if lastObs >= 0 {
			logger.Infof("interval width at last observation %.3f, at horizon %.3f",
				widths[lastObs], widths[len(widths)-1])
		}
	}
	return nil
}
