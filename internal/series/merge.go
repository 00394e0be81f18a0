// Package series joins provider series onto a daily axis and derives NVT.
package series

import (
	"sort"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
)

// Point is one raw (timestamp, value) observation.
type Point struct {
	Time  time.Time
	Value float64
}

// OuterJoinMarket merges the price, market cap and volume series on UTC day.
// A day present in any series yields a row; fields missing for that day stay
// undefined. When a series has several points on one day, the last one wins.
func OuterJoinMarket(prices, caps, volumes []Point) []core.Record {
	rows := make(map[time.Time]*core.Record)
	row := func(t time.Time) *core.Record {
		d := core.Day(t)
		r, ok := rows[d]
		if !ok {
			r = &core.Record{Date: d}
			rows[d] = r
		}
		return r
	}

	for _, p := range prices {
		row(p.Time).Price = core.Float(p.Value)
	}
	for _, p := range caps {
		row(p.Time).MarketCap = core.Float(p.Value)
	}
	for _, p := range volumes {
		row(p.Time).Volume = core.Float(p.Value)
	}

	out := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sortByDate(out)
	return out
}

// MergeAndDerive inner-joins market and chain rows on date, tags them with
// symbol and computes NVT = market cap / transaction count. Days missing on
// either side are dropped. NVT is undefined when the count is zero or the
// market cap is unknown.
func MergeAndDerive(market, chain []core.Record, symbol string) []core.Record {
	byDate := make(map[time.Time]core.Record, len(chain))
	for _, c := range chain {
		byDate[core.Day(c.Date)] = c
	}

	out := make([]core.Record, 0, len(market))
	seen := make(map[time.Time]bool, len(market))
	for _, m := range market {
		d := core.Day(m.Date)
		c, ok := byDate[d]
		if !ok || seen[d] {
			continue
		}
		seen[d] = true

		r := core.Record{
			Date:             d,
			Symbol:           symbol,
			Price:            m.Price,
			MarketCap:        m.MarketCap,
			Volume:           m.Volume,
			Time:             c.Time,
			TransactionCount: c.TransactionCount,
			CurrentSupply:    c.CurrentSupply,
			NewAddresses:     c.NewAddresses,
			ActiveAddresses:  c.ActiveAddresses,
		}
		r.NVT = NVT(r.MarketCap, r.TransactionCount)
		out = append(out, r)
	}
	sortByDate(out)
	return out
}

// NVT divides market cap by transaction count, leaving the result
// undefined rather than zero or infinite when it cannot be computed.
func NVT(marketCap core.NullFloat64, txCount int64) core.NullFloat64 {
	if !marketCap.Valid || txCount == 0 {
		return core.NullFloat64{}
	}
	return core.Float(marketCap.Float64 / float64(txCount))
}

// Union concatenates per-asset tables into one long-format table sorted by
// date. Rows within a date keep their input order.
func Union(tables ...[]core.Record) []core.Record {
	n := 0
	for _, t := range tables {
		n += len(t)
	}
	out := make([]core.Record, 0, n)
	for _, t := range tables {
		out = append(out, t...)
	}
	sortByDate(out)
	return out
}

func sortByDate(rs []core.Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Date.Before(rs[j].Date)
	})
}
