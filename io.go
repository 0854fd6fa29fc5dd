package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sentinel the flux-tower files use for missing values. Converted to NaN on
// load; it must never survive into an aggregation.
const missingSentinel = -9999.0

const fluxTimeLayout = "200601021504"

// parseValue converts one CSV cell to a float, mapping the missing sentinel
// and the usual textual markers to NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "NaN" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v == missingSentinel {
		return math.NaN(), nil
	}
	return v, nil
}

// headerIndex maps column names to positions, case-insensitively.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return idx
}

// LoadFluxCSV reads a half-hourly flux-tower file. Required columns:
// TIMESTAMP (YYYYMMDDHHMM), NEE, QC. Driver columns TA, PAR, VPD are
// optional and come back NaN when absent.
func LoadFluxCSV(path string) (*FluxTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	for _, need := range []string{"TIMESTAMP", "NEE", "QC"} {
		if _, ok := idx[need]; !ok {
			return nil, fmt.Errorf("%s: missing column %s", path, need)
		}
	}

	ft := &FluxTable{}
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		row++

		tm, err := time.Parse(fluxTimeLayout, strings.TrimSpace(record[idx["TIMESTAMP"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parse timestamp %q: %w", row+1, record[idx["TIMESTAMP"]], err)
		}
		nee, err := parseValue(record[idx["NEE"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse NEE: %w", row+1, err)
		}
		qcRaw, err := parseValue(record[idx["QC"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse QC: %w", row+1, err)
		}
		qc := 0
		if math.IsNaN(qcRaw) {
			// missing flag means the value cannot be trusted
			qc = math.MaxInt32
		} else {
			qc = int(qcRaw)
		}

		rec := FluxRecord{Time: tm, NEE: nee, QC: qc, TA: math.NaN(), PAR: math.NaN(), VPD: math.NaN()}
		for name, dst := range map[string]*float64{"TA": &rec.TA, "PAR": &rec.PAR, "VPD": &rec.VPD} {
			if col, ok := idx[name]; ok {
				v, err := parseValue(record[col])
				if err != nil {
					return nil, fmt.Errorf("row %d: parse %s: %w", row+1, name, err)
				}
				*dst = v
			}
		}
		ft.Records = append(ft.Records, rec)
	}

	if len(ft.Records) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return ft, nil
}

// LoadSeriesCSV reads an ordered (date, value) series. Columns: DATE
// (2006-01-02) and VALUE; missing markers become NaN.
func LoadSeriesCSV(path string) (*SeriesObs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	dateCol, ok := idx["DATE"]
	if !ok {
		return nil, fmt.Errorf("%s: missing column DATE", path)
	}
	valCol, ok := idx["VALUE"]
	if !ok {
		return nil, fmt.Errorf("%s: missing column VALUE", path)
	}

	s := &SeriesObs{}
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		row++

		d, err := time.Parse("2006-01-02", strings.TrimSpace(record[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parse date %q: %w", row+1, record[dateCol], err)
		}
		v, err := parseValue(record[valCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse value: %w", row+1, err)
		}
		s.Dates = append(s.Dates, d)
		s.Values = append(s.Values, v)
	}

	if len(s.Values) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return s, nil
}

// LoadEnsembleCSV reads an ensemble (or particle filter) output in long-wide
// form: columns STEP, MEMBER, then one column per variable. A variable
// header may carry a unit in parentheses, e.g. "NEE (umolCO2 m-2 s-1)".
// Cells never written stay NaN.
func LoadEnsembleCSV(path string) (*EnsembleOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("%s: expected STEP, MEMBER and at least one variable column", path)
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "STEP") ||
		!strings.EqualFold(strings.TrimSpace(header[1]), "MEMBER") {
		return nil, fmt.Errorf("%s: first two columns must be STEP, MEMBER", path)
	}

	names := make([]string, len(header)-2)
	units := make([]string, len(header)-2)
	for i, h := range header[2:] {
		h = strings.TrimSpace(h)
		if open := strings.Index(h, "("); open >= 0 && strings.HasSuffix(h, ")") {
			names[i] = strings.TrimSpace(h[:open])
			units[i] = strings.TrimSpace(h[open+1 : len(h)-1])
		} else {
			names[i] = h
		}
	}

	type cell struct {
		t, m int
		vals []float64
	}
	var cells []cell
	maxStep, maxMember := -1, -1
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		row++
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+1, len(header), len(record))
		}

		t, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parse STEP: %w", row+1, err)
		}
		m, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parse MEMBER: %w", row+1, err)
		}
		if t < 0 || m < 0 {
			return nil, fmt.Errorf("row %d: STEP and MEMBER must be non-negative", row+1)
		}
		vals := make([]float64, len(names))
		for j := range names {
			v, err := parseValue(record[2+j])
			if err != nil {
				return nil, fmt.Errorf("row %d: parse %s: %w", row+1, names[j], err)
			}
			vals[j] = v
		}
		cells = append(cells, cell{t: t, m: m, vals: vals})
		if t > maxStep {
			maxStep = t
		}
		if m > maxMember {
			maxMember = m
		}
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	ens, err := NewEnsembleOutput(maxStep+1, maxMember+1, names, units)
	if err != nil {
		return nil, err
	}
	for i := range ens.data {
		ens.data[i] = math.NaN()
	}
	for _, c := range cells {
		for j, v := range c.vals {
			ens.Set(c.t, c.m, j, v)
		}
	}
	return ens, nil
}

// WriteErrorStatsCSV writes the error-statistics table.
// Columns: Predictor, RMSE, Bias, Corr, Slope, N
func WriteErrorStatsCSV(path string, rows []PredictorStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Predictor", "RMSE", "Bias", "Corr", "Slope", "N"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Predictor,
			fmt.Sprintf("%f", r.Stats.RMSE),
			fmt.Sprintf("%f", r.Stats.Bias),
			fmt.Sprintf("%f", r.Stats.Corr),
			fmt.Sprintf("%f", r.Stats.Slope),
			fmt.Sprintf("%d", r.N),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteBandCSV writes a credible band in long format.
// Columns: Date, Lower, Median, Upper
func WriteBandCSV(path string, band CredibleBand) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Lower", "Median", "Upper"}); err != nil {
		return err
	}
	for i := range band.Median {
		date := ""
		if band.Dates != nil {
			date = band.Dates[i].Format("2006-01-02")
		} else {
			date = fmt.Sprintf("%d", i)
		}
		record := []string{
			date,
			fmt.Sprintf("%f", band.Lower[i]),
			fmt.Sprintf("%f", band.Median[i]),
			fmt.Sprintf("%f", band.Upper[i]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteImportanceCSV writes per-driver random-forest importance.
// Columns: Driver, Importance
func WriteImportanceCSV(path string, names []string, imp []float64) error {
	if len(names) != len(imp) {
		return fmt.Errorf("%w: %d names vs %d importances", ErrInvalidInput, len(names), len(imp))
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Driver", "Importance"}); err != nil {
		return err
	}
	for i, n := range names {
		if err := writer.Write([]string{n, fmt.Sprintf("%f", imp[i])}); err != nil {
			return err
		}
	}
	return nil
}

// WritePartialDependenceCSV writes one partial-dependence curve.
// Columns: <driver>, PredictedAbsError
func WritePartialDependenceCSV(path, driver string, grid, curve []float64) error {
	if len(grid) != len(curve) {
		return fmt.Errorf("%w: grid and curve lengths differ", ErrInvalidInput)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{driver, "PredictedAbsError"}); err != nil {
		return err
	}
	for i := range grid {
		record := []string{fmt.Sprintf("%f", grid[i]), fmt.Sprintf("%f", curve[i])}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// WriteScenarioSummaryCSV writes the per-scenario precision posteriors on
// the standard-deviation scale.
// Columns: Scenario, SDObsMean, SDObsLower, SDObsUpper, SDAddMean, SDAddLower, SDAddUpper
func WriteScenarioSummaryCSV(path string, results []ScenarioResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Scenario", "SDObsMean", "SDObsLower", "SDObsUpper", "SDAddMean", "SDAddLower", "SDAddUpper"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, res := range results {
		record := []string{
			res.Name,
			fmt.Sprintf("%f", res.SDObs.Mean),
			fmt.Sprintf("%f", res.SDObs.Lower),
			fmt.Sprintf("%f", res.SDObs.Upper),
			fmt.Sprintf("%f", res.SDAdd.Mean),
			fmt.Sprintf("%f", res.SDAdd.Lower),
			fmt.Sprintf("%f", res.SDAdd.Upper),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}
