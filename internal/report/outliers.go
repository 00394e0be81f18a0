// Package report turns backtest output and the merged table into
// self-contained tables for charting.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
)

// Column selects the value FilterIQR screens.
type Column string

const (
	ColumnPctChange Column = "pct_change"
	ColumnNVT       Column = "nvt"
)

// DefaultIQRFactor is the Tukey fence multiplier.
const DefaultIQRFactor = 1.5

// Point is one (symbol, date) observation of the NVT vs return scatter.
type Point struct {
	Date      time.Time
	Symbol    string
	NVT       core.NullFloat64
	PctChange core.NullFloat64
}

func (p Point) value(c Column) core.NullFloat64 {
	if c == ColumnNVT {
		return p.NVT
	}
	return p.PctChange
}

// PercentChange computes each row's price change against the previous row
// of the same symbol. The first row of a symbol, and any row whose price or
// previous price is undefined or zero, gets an undefined change.
// Output keeps the input order.
func PercentChange(records []core.Record) []Point {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Date.Before(records[order[b]].Date)
	})

	out := make([]Point, len(records))
	prev := make(map[string]core.NullFloat64)
	for _, i := range order {
		r := records[i]
		p := Point{Date: r.Date, Symbol: r.Symbol, NVT: r.NVT}
		if last, ok := prev[r.Symbol]; ok && last.Valid && last.Float64 != 0 && r.Price.Valid {
			p.PctChange = core.Float(r.Price.Float64/last.Float64 - 1)
		}
		prev[r.Symbol] = r.Price
		out[i] = p
	}
	return out
}

// FilterIQR keeps the points whose column value lies within
// [Q1 - factor*IQR, Q3 + factor*IQR]. Points with an undefined value are
// dropped. Quartiles use linear interpolation between closest ranks.
func FilterIQR(points []Point, column Column, factor float64) []Point {
	var values []float64
	for _, p := range points {
		if v := p.value(column); v.Valid {
			values = append(values, v.Float64)
		}
	}
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)

	q1, q3 := quantile(values, 0.25), quantile(values, 0.75)
	iqr := q3 - q1
	lo, hi := q1-factor*iqr, q3+factor*iqr

	out := make([]Point, 0, len(values))
	for _, p := range points {
		v := p.value(column)
		if v.Valid && v.Float64 >= lo && v.Float64 <= hi {
			out = append(out, p)
		}
	}
	return out
}

// Scatter is the NVT vs price change table: percent change filtered on
// itself, then on NVT.
func Scatter(records []core.Record) []Point {
	points := FilterIQR(PercentChange(records), ColumnPctChange, DefaultIQRFactor)
	return FilterIQR(points, ColumnNVT, DefaultIQRFactor)
}

// quantile expects sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
