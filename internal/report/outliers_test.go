package report

import (
	"testing"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(d int, symbol string, price float64, nvt float64) core.Record {
	return core.Record{
		Date:   base.AddDate(0, 0, d),
		Symbol: symbol,
		Price:  core.Float(price),
		NVT:    core.Float(nvt),
	}
}

func TestPercentChange(t *testing.T) {
	records := []core.Record{
		rec(0, "A", 100, 1),
		rec(0, "B", 50, 2),
		rec(1, "A", 110, 3),
		{Date: base.AddDate(0, 0, 1), Symbol: "B"}, // undefined price
		rec(2, "B", 60, 4),
		rec(2, "A", 99, 5),
	}

	points := PercentChange(records)
	require.Len(t, points, len(records))

	assert.False(t, points[0].PctChange.Valid, "first A row")
	assert.False(t, points[1].PctChange.Valid, "first B row")
	assert.InDelta(t, 0.10, points[2].PctChange.Float64, 1e-12)
	assert.False(t, points[3].PctChange.Valid, "undefined price")
	assert.False(t, points[4].PctChange.Valid, "previous price undefined")
	assert.InDelta(t, -0.10, points[5].PctChange.Float64, 1e-12)

	assert.Equal(t, "B", points[4].Symbol)
	assert.Equal(t, core.Float(4), points[4].NVT)
}

func TestPercentChange_UnsortedInput(t *testing.T) {
	records := []core.Record{rec(1, "A", 120, 1), rec(0, "A", 100, 1)}

	points := PercentChange(records)
	assert.InDelta(t, 0.20, points[0].PctChange.Float64, 1e-12)
	assert.False(t, points[1].PctChange.Valid)
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(values, 0.25), 1e-12)
	assert.InDelta(t, 3.25, quantile(values, 0.75), 1e-12)
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.25))
}

func TestFilterIQR(t *testing.T) {
	var points []Point
	for i, v := range []float64{1, 2, 3, 4, 100} {
		points = append(points, Point{Symbol: string(rune('A' + i)), NVT: core.Float(v)})
	}
	points = append(points, Point{Symbol: "U"})

	// Q1=2, Q3=4, IQR=2, fences [-1, 7]
	kept := FilterIQR(points, ColumnNVT, DefaultIQRFactor)

	var symbols []string
	for _, p := range kept {
		symbols = append(symbols, p.Symbol)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, symbols)
}

func TestFilterIQR_NoValues(t *testing.T) {
	assert.Empty(t, FilterIQR([]Point{{Symbol: "A"}}, ColumnPctChange, DefaultIQRFactor))
	assert.Empty(t, FilterIQR(nil, ColumnNVT, DefaultIQRFactor))
}

func TestScatter_FiltersBothColumns(t *testing.T) {
	var records []core.Record
	for d := 0; d < 6; d++ {
		nvt := 10.0 + float64(d)
		if d == 5 {
			nvt = 1e6
		}
		records = append(records, rec(d, "A", 100+float64(d), nvt))
	}

	points := Scatter(records)

	// first row has no change, last row is an NVT outlier
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.True(t, p.PctChange.Valid)
		assert.Less(t, p.NVT.Float64, 1e6)
	}
}
