package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grid = []string{DimTime, DimRange}

func staLikeTable() Table {
	return Table{
		Time: TimeSpec{Column: "Date", Layouts: []string{"02/01/2006 15:04:05"}},
		Rules: []ColumnRule{
			{Name: "WS", Dims: grid, Contains: "Vhm", Required: true},
			{Name: "WS_min", Dims: grid, Contains: "VhMin"},
			{Name: "CNR", Dims: grid, Contains: "CNRm", Excludes: []string{"CNRmax", "CNRmin"}},
			{Name: "T_internal", Dims: []string{DimTime}, Column: "Tm"},
			{Name: "wiper", Dims: []string{DimTime}, Type: String, Column: "Wiper"},
			{Name: "rain", Dims: []string{DimTime}, Column: "Raining"},
		},
	}
}

var staLabels = []string{
	"Date", "Tm", "Wiper",
	"Vhm40", "VhMin40", "CNRm40", "CNRmax40", "CNRmin40",
	"Vhm60", "VhMin60", "CNRm60", "CNRmax60", "CNRmin60",
}

var staRecords = []RawRecord{
	{"01/07/2020 10:00:00", "21.5", "Off", "5.1", "4.0", "-10", "-5", "-15", "6.1", "5.0", "-12", "-6", "-18"},
	{"01/07/2020 10:10:00", "21.7", "On", "5.3", "n/a", "-11", "-5", "-16", "6.3", "5.2", "-13", "-7", "-19"},
}

func TestCompilePlan_SubstringExclusion(t *testing.T) {
	plan, err := CompilePlan(staLikeTable(), staLabels, 2, false)
	require.NoError(t, err)

	data := plan.Apply(staRecords)

	assert.Equal(t, []float64{5.1, 6.1, 5.3, 6.3}, data["WS"].Floats)
	assert.Equal(t, []float64{-10, -12, -11, -13}, data["CNR"].Floats)
	assert.Equal(t, []float64{21.5, 21.7}, data["T_internal"].Floats)
	assert.Equal(t, []string{"Off", "On"}, data["wiper"].Texts)
	assert.NotContains(t, data, "rain", "optional rule without a column is omitted")

	wsMin := data["WS_min"].Floats
	assert.Equal(t, []float64{4.0, 5.0}, []float64{wsMin[0], wsMin[1]})
	assert.True(t, math.IsNaN(wsMin[2]), "non-numeric field maps to NaN")
}

func TestCompilePlan_WrongGateCount(t *testing.T) {
	_, err := CompilePlan(staLikeTable(), staLabels, 3, false)

	var sme *SchemaMappingError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, "WS", sme.Variable)
}

func TestCompilePlan_MissingRequired(t *testing.T) {
	_, err := CompilePlan(staLikeTable(), []string{"Date", "Tm"}, 2, false)

	var sme *SchemaMappingError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, "WS", sme.Variable)
}

func TestCompilePlan_ExtraColumns(t *testing.T) {
	table := Table{Rules: []ColumnRule{
		{Name: "WS", Dims: grid, Contains: "Horizontal Wind Speed (m/s) at", Extra: []string{"MET Wind Speed (m/s)"}},
		{Name: "n_valid", Dims: grid, Contains: "Packets in Average at", Extra: []string{"MET Packets"}},
	}}
	labels := []string{
		"Time and Date",
		"Horizontal Wind Speed (m/s) at 10m", "Horizontal Wind Speed (m/s) at 20m",
		"Packets in Average at 10m", "Packets in Average at 20m",
		"MET Wind Speed (m/s)",
	}
	records := []RawRecord{{"t", "3,5", "4,5", "100", "98", "2,5"}}

	plan, err := CompilePlan(table, labels, 3, true)
	require.NoError(t, err)
	data := plan.Apply(records)

	assert.Equal(t, []float64{3.5, 4.5, 2.5}, data["WS"].Floats)
	valid := data["n_valid"].Floats
	assert.Equal(t, []float64{100, 98}, valid[:2])
	assert.True(t, math.IsNaN(valid[2]), "missing extra column fills NaN")
}

func TestMapInto_Idempotent(t *testing.T) {
	times := []time.Time{
		time.Date(2020, 7, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2020, 7, 1, 10, 10, 0, 0, time.UTC),
	}
	build := func() *Batch {
		b := NewBatch("a.sta", "windcube_v1", times, []float64{40, 60})
		require.NoError(t, MapInto(b, staLikeTable(), staLabels, staRecords, false))
		return b
	}

	first, second := build(), build()

	require.NoError(t, first.Validate())
	if diff := cmp.Diff(first, second, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("mapping is not deterministic (-first +second):\n%s", diff)
	}
}

func TestMapInto_RecordCountMismatch(t *testing.T) {
	b := NewBatch("a.sta", "windcube_v1", []time.Time{time.Now()}, []float64{40, 60})
	assert.Error(t, MapInto(b, staLikeTable(), staLabels, staRecords, false))
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, 1.25, ParseNumber(" 1.25 ", false))
	assert.Equal(t, 1.25, ParseNumber("1,25", true))
	assert.True(t, math.IsNaN(ParseNumber("1,25", false)))
	assert.True(t, math.IsNaN(ParseNumber("", false)))
}
