package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseValue(t *testing.T) {
	for _, s := range []string{"", "NA", "NaN", "-9999", " -9999 "} {
		v, err := parseValue(s)
		assert.NoError(t, err)
		assert.True(t, math.IsNaN(v), "%q should be missing", s)
	}
	v, err := parseValue("-3.25")
	assert.NoError(t, err)
	assert.Equal(t, -3.25, v)

	_, err = parseValue("abc")
	assert.Error(t, err)
}

func TestLoadFluxCSV(t *testing.T) {
	path := writeTemp(t, "flux.csv", `TIMESTAMP,NEE,QC,TA,PAR,VPD
200301010000,-2.5,0,3.1,0,1.2
200301010030,-9999,0,3.2,0,1.3
200301010100,4.0,2,-9999,10,1.4
`)
	ft, err := LoadFluxCSV(path)
	assert.NoError(t, err)
	assert.Len(t, ft.Records, 3)

	r0 := ft.Records[0]
	assert.Equal(t, time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC), r0.Time)
	assert.Equal(t, -2.5, r0.NEE)
	assert.Equal(t, 0, r0.QC)
	assert.Equal(t, 3.1, r0.TA)

	// sentinel NEE must become NaN, never zero
	assert.True(t, math.IsNaN(ft.Records[1].NEE))
	assert.True(t, math.IsNaN(ft.Records[2].TA))
	assert.Equal(t, 2, ft.Records[2].QC)

	mask := ft.QualityMask(0)
	assert.Equal(t, []bool{true, false, false}, mask)
}

func TestLoadFluxCSV_OptionalDrivers(t *testing.T) {
	path := writeTemp(t, "flux.csv", `TIMESTAMP,NEE,QC
200301010000,-2.5,0
`)
	ft, err := LoadFluxCSV(path)
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(ft.Records[0].TA))
	assert.True(t, math.IsNaN(ft.Records[0].PAR))
	assert.True(t, math.IsNaN(ft.Records[0].VPD))
}

func TestLoadFluxCSV_MissingColumn(t *testing.T) {
	path := writeTemp(t, "flux.csv", `TIMESTAMP,NEE
200301010000,-2.5
`)
	_, err := LoadFluxCSV(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "QC")
}

func TestLoadSeriesCSV(t *testing.T) {
	path := writeTemp(t, "series.csv", `DATE,VALUE
2003-01-05,120.5
2003-01-12,NA
2003-01-19,98.0
`)
	s, err := LoadSeriesCSV(path)
	assert.NoError(t, err)
	assert.Len(t, s.Values, 3)
	assert.Equal(t, 120.5, s.Values[0])
	assert.True(t, math.IsNaN(s.Values[1]))
	assert.Equal(t, time.Date(2003, 1, 19, 0, 0, 0, 0, time.UTC), s.Dates[2])
}

func TestSeriesObs_Log(t *testing.T) {
	s := &SeriesObs{Values: []float64{math.E, math.NaN(), 1}}
	logs, err := s.Log()
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, logs[0], 1e-12)
	assert.True(t, math.IsNaN(logs[1]))
	assert.Equal(t, 0.0, logs[2])

	bad := &SeriesObs{Values: []float64{1, 0, 2}}
	_, err = bad.Log()
	assert.Error(t, err)
}

func TestLoadEnsembleCSV(t *testing.T) {
	path := writeTemp(t, "ens.csv", `STEP,MEMBER,NEE (umolCO2 m-2 s-1),GPP
0,0,-1.0,2.0
0,1,-2.0,3.0
1,0,-3.0,4.0
1,1,-9999,5.0
`)
	ens, err := LoadEnsembleCSV(path)
	assert.NoError(t, err)
	assert.Equal(t, 2, ens.Steps)
	assert.Equal(t, 2, ens.Members)
	assert.Equal(t, []string{"NEE", "GPP"}, ens.VarNames)
	assert.Equal(t, "umolCO2 m-2 s-1", ens.Units[0])
	assert.Equal(t, "", ens.Units[1])

	v := ens.VarIndex("NEE")
	assert.Equal(t, -1.0, ens.At(0, 0, v))
	assert.True(t, math.IsNaN(ens.At(1, 1, v)))

	// missing member is skipped by the mean, not counted as zero
	mean := ens.MemberMean(v)
	assert.InDelta(t, -1.5, mean[0], 1e-12)
	assert.InDelta(t, -3.0, mean[1], 1e-12)
}

func TestLoadEnsembleCSV_SparseCellsStayNaN(t *testing.T) {
	path := writeTemp(t, "ens.csv", `STEP,MEMBER,NEE
2,1,-1.0
`)
	ens, err := LoadEnsembleCSV(path)
	assert.NoError(t, err)
	assert.Equal(t, 3, ens.Steps)
	assert.Equal(t, 2, ens.Members)
	assert.True(t, math.IsNaN(ens.At(0, 0, 0)))
	assert.Equal(t, -1.0, ens.At(2, 1, 0))
}

func TestLoadEnsembleCSV_BadHeader(t *testing.T) {
	path := writeTemp(t, "ens.csv", `TIME,MEMBER,NEE
0,0,1
`)
	_, err := LoadEnsembleCSV(path)
	assert.Error(t, err)
}

func TestWriteErrorStatsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	rows := []PredictorStats{
		{Predictor: "ensemble", Stats: ErrorStats{RMSE: 1.5, Bias: -0.2, Corr: 0.9, Slope: 1.1}, N: 42},
	}
	assert.NoError(t, WriteErrorStatsCSV(path, rows))

	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), "Predictor,RMSE,Bias,Corr,Slope,N")
	assert.Contains(t, string(raw), "ensemble")
}

func TestWriteBandCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "band.csv")
	band := CredibleBand{
		Dates:  []time.Time{time.Date(2003, 1, 5, 0, 0, 0, 0, time.UTC)},
		Lower:  []float64{90},
		Median: []float64{100},
		Upper:  []float64{115},
	}
	assert.NoError(t, WriteBandCSV(path, band))
	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), "2003-01-05")
}

func TestWriteScenarioSummaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.csv")
	results := []ScenarioResult{
		{Name: "original", SDObs: PosteriorScalar{Mean: 0.1}, SDAdd: PosteriorScalar{Mean: 0.2}},
		{Name: "thinned", SDObs: PosteriorScalar{Mean: 0.3}, SDAdd: PosteriorScalar{Mean: 0.4}},
	}
	assert.NoError(t, WriteScenarioSummaryCSV(path, results))
	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), "original")
	assert.Contains(t, string(raw), "thinned")
}

func TestWriteImportanceCSV_LengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imp.csv")
	err := WriteImportanceCSV(path, []string{"TA"}, []float64{0.5, 0.5})
	assert.Error(t, err)
}
