package series

import (
	"bytes"
	"testing"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestOuterJoinMarket(t *testing.T) {
	prices := []Point{{day(0), 100}, {day(1), 110}}
	caps := []Point{{day(1), 1e9}, {day(2), 2e9}}
	volumes := []Point{{day(0).Add(5 * time.Hour), 7}}

	rows := OuterJoinMarket(prices, caps, volumes)
	require.Len(t, rows, 3)

	assert.Equal(t, day(0), rows[0].Date)
	assert.Equal(t, core.Float(100), rows[0].Price)
	assert.False(t, rows[0].MarketCap.Valid, "missing cap must stay undefined, not zero")
	assert.Equal(t, core.Float(7), rows[0].Volume)

	assert.Equal(t, core.Float(110), rows[1].Price)
	assert.Equal(t, core.Float(1e9), rows[1].MarketCap)
	assert.False(t, rows[1].Volume.Valid)

	assert.False(t, rows[2].Price.Valid)
	assert.Equal(t, core.Float(2e9), rows[2].MarketCap)
}

func TestOuterJoinMarket_LastPointOfDayWins(t *testing.T) {
	prices := []Point{{day(0), 1}, {day(0).Add(time.Hour), 2}, {day(0).Add(23 * time.Hour), 3}}

	rows := OuterJoinMarket(prices, nil, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0].Price.Float64)
}

func TestOuterJoinMarket_Sorted(t *testing.T) {
	prices := []Point{{day(5), 1}, {day(1), 1}, {day(3), 1}}
	rows := OuterJoinMarket(prices, nil, nil)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Date.Before(rows[i].Date))
	}
}

func chainRow(d time.Time, tx int64) core.Record {
	return core.Record{Date: d, Time: d.Unix(), TransactionCount: tx, ActiveAddresses: 10, NewAddresses: 2, CurrentSupply: core.Float(21e6)}
}

func TestMergeAndDerive_InnerJoin(t *testing.T) {
	market := []core.Record{
		{Date: day(0), Price: core.Float(100), MarketCap: core.Float(1000)},
		{Date: day(1), Price: core.Float(110), MarketCap: core.Float(1100)},
		{Date: day(2), Price: core.Float(120), MarketCap: core.Float(1200)},
	}
	chain := []core.Record{chainRow(day(1), 10), chainRow(day(2), 0), chainRow(day(3), 5)}

	rows := MergeAndDerive(market, chain, "BTC")
	require.Len(t, rows, 2, "days missing from either side are dropped")

	assert.Equal(t, day(1), rows[0].Date)
	assert.Equal(t, "BTC", rows[0].Symbol)
	assert.Equal(t, core.Float(110), rows[0].NVT)
	assert.Equal(t, int64(10), rows[0].ActiveAddresses)
	assert.Equal(t, core.Float(21e6), rows[0].CurrentSupply)

	assert.Equal(t, day(2), rows[1].Date)
	assert.False(t, rows[1].NVT.Valid, "zero transactions must give undefined NVT")
}

func TestMergeAndDerive_NVTExact(t *testing.T) {
	caps := []float64{1.23456789e11, 987654321.5, 3, 1e-3}
	txs := []int64{123456, 7, 3, 1}

	for i := range caps {
		market := []core.Record{{Date: day(i), Price: core.Float(1), MarketCap: core.Float(caps[i])}}
		chain := []core.Record{chainRow(day(i), txs[i])}

		rows := MergeAndDerive(market, chain, "X")
		require.Len(t, rows, 1)
		assert.Equal(t, caps[i]/float64(txs[i]), rows[0].NVT.Float64)
	}
}

func TestMergeAndDerive_UndefinedCap(t *testing.T) {
	market := []core.Record{{Date: day(0), Price: core.Float(1)}}
	rows := MergeAndDerive(market, []core.Record{chainRow(day(0), 10)}, "X")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].NVT.Valid)
}

func TestMergeAndDerive_Idempotent(t *testing.T) {
	market := OuterJoinMarket(
		[]Point{{day(0), 1.5}, {day(1), 2.25}, {day(2), 3}},
		[]Point{{day(0), 1e6}, {day(1), 2e6}, {day(2), 3e6}},
		[]Point{{day(0), 10}, {day(2), 30}},
	)
	chain := []core.Record{chainRow(day(0), 3), chainRow(day(1), 0), chainRow(day(2), 7)}

	render := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, MergeAndDerive(market, chain, "ETH")))
		return buf.Bytes()
	}

	first, second := render(), render()
	assert.Equal(t, first, second)
}

func TestNVT(t *testing.T) {
	assert.Equal(t, core.Float(5), NVT(core.Float(50), 10))
	assert.False(t, NVT(core.Float(50), 0).Valid)
	assert.False(t, NVT(core.NullFloat64{}, 10).Valid)
}

func TestUnion(t *testing.T) {
	a := []core.Record{{Date: day(0), Symbol: "A"}, {Date: day(2), Symbol: "A"}}
	b := []core.Record{{Date: day(0), Symbol: "B"}, {Date: day(1), Symbol: "B"}}

	rows := Union(a, b)
	require.Len(t, rows, 4)

	var got []string
	for _, r := range rows {
		got = append(got, r.Date.Format("01-02")+r.Symbol)
	}
	assert.Equal(t, []string{"01-01A", "01-01B", "01-02B", "01-03A"}, got)

	assert.Empty(t, Union())
}
