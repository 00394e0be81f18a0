package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/nvtrotate/internal/backtest"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"github.com/newthinker/nvtrotate/internal/report"
	"github.com/newthinker/nvtrotate/internal/series"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	start = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = start.AddDate(0, 0, 1)
)

// fakeSources serves canned market and chain rows keyed by symbol.
type fakeSources struct {
	ids      map[string]string
	market   map[string][]core.Record
	chain    map[string][]core.Record
	chainErr map[string]error
	calls    []string
}

func (f *fakeSources) Resolve(ctx context.Context, symbol string) (string, error) {
	f.calls = append(f.calls, "resolve:"+symbol)
	id, ok := f.ids[symbol]
	if !ok {
		return "", core.WrapError(core.ErrNotFound, fmt.Errorf("no coin matches %s", symbol))
	}
	return id, nil
}

func (f *fakeSources) FetchMarketSeries(ctx context.Context, id string, s, e time.Time) ([]core.Record, error) {
	f.calls = append(f.calls, "market:"+id)
	return f.market[id], nil
}

func (f *fakeSources) FetchChainMetrics(ctx context.Context, ticker string, asOf time.Time) ([]core.Record, error) {
	f.calls = append(f.calls, "chain:"+ticker)
	if err := f.chainErr[ticker]; err != nil {
		return nil, err
	}
	return f.chain[ticker], nil
}

func (f *fakeSources) sources() Sources {
	return Sources{Resolver: f, Market: f, Chain: f}
}

// asset registers two days of data whose NVT equals nvt[i] with a tx count of 1.
func (f *fakeSources) asset(symbol string, prices, nvt [2]float64) {
	id := strings.ToLower(symbol) + "-coin"
	f.ids[symbol] = id
	for i := 0; i < 2; i++ {
		d := start.AddDate(0, 0, i)
		f.market[id] = append(f.market[id], core.Record{Date: d, Price: core.Float(prices[i]), MarketCap: core.Float(nvt[i])})
		f.chain[symbol] = append(f.chain[symbol], core.Record{Date: d, Time: d.Unix(), TransactionCount: 1})
	}
}

func newFakes() *fakeSources {
	f := &fakeSources{
		ids:      map[string]string{},
		market:   map[string][]core.Record{},
		chain:    map[string][]core.Record{},
		chainErr: map[string]error{},
	}
	f.asset("A", [2]float64{100, 110}, [2]float64{10, 5})
	f.asset("B", [2]float64{50, 55}, [2]float64{5, 10})
	return f
}

func newOptions(t *testing.T, universe ...string) (Options, archive.Storage) {
	t.Helper()
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return Options{
		Universe:    universe,
		Start:       start,
		End:         end,
		Backtest:    backtest.Config{SeedBalance: decimal.NewFromInt(1000), TopN: 1},
		Results:     store,
		Metrics:     metrics.NewRegistry(),
		MetricsFile: "metrics.prom",
	}, store
}

func TestRunner_Run(t *testing.T) {
	f := newFakes()
	f.ids["CHN"] = "chn-coin"
	f.chainErr["CHN"] = core.WrapError(core.ErrUnavailable, errors.New("fsym param is invalid"))

	opts, store := newOptions(t, "a", "MISSING", "B", "CHN")
	obs, logs := observer.New(zap.DebugLevel)
	opts.Logger = zap.New(obs)
	var out bytes.Buffer
	opts.Out = &out

	outcome, err := New(f.sources(), opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, outcome.Assets)
	require.Len(t, outcome.Skipped, 2)
	assert.Equal(t, "MISSING", outcome.Skipped[0].Symbol)
	assert.Equal(t, StageResolve, outcome.Skipped[0].Stage)
	assert.True(t, errors.Is(outcome.Skipped[0].Err, core.ErrNotFound))
	assert.Equal(t, "CHN", outcome.Skipped[1].Symbol)
	assert.Equal(t, StageChain, outcome.Skipped[1].Stage)
	assert.Equal(t, 4, outcome.Rows)
	assert.NotEmpty(t, outcome.RunID)

	assert.True(t, outcome.Result.RelativeReturn.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "Total Return: 10.00%\n", out.String())

	skips := logs.FilterMessage("skipping asset").All()
	require.Len(t, skips, 2)
	assert.Equal(t, "not_found", skips[0].ContextMap()["reason"])
	assert.Equal(t, "unavailable", skips[1].ContextMap()["reason"])
	for _, e := range logs.All() {
		assert.Equal(t, outcome.RunID, e.ContextMap()["run_id"], e.Message)
	}

	// sequential, universe order
	assert.Equal(t, []string{
		"resolve:A", "market:a-coin", "chain:A",
		"resolve:MISSING",
		"resolve:B", "market:b-coin", "chain:B",
		"resolve:CHN", "market:chn-coin", "chain:CHN",
	}, f.calls)

	ctx := context.Background()
	for _, name := range []string{report.MergedFile, report.BalanceFile, report.ScatterFile, report.SummaryFile, "metrics.prom"} {
		ok, err := store.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	raw, err := store.Read(ctx, report.MergedFile)
	require.NoError(t, err)
	merged, err := series.ReadCSV(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Len(t, merged, 4)

	prom, err := store.Read(ctx, "metrics.prom")
	require.NoError(t, err)
	assert.Contains(t, string(prom), `nvt_assets_skipped_total{reason="not_found",stage="resolve"} 1`)
	assert.Contains(t, string(prom), `nvt_assets_merged_total 2`)
}

func TestRunner_Run_NoCommonDates(t *testing.T) {
	f := newFakes()
	for i := range f.chain["B"] {
		f.chain["B"][i].Date = f.chain["B"][i].Date.AddDate(1, 0, 0)
	}

	opts, _ := newOptions(t, "A", "B")
	outcome, err := New(f.sources(), opts).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, StageMerge, outcome.Skipped[0].Stage)
	assert.True(t, errors.Is(outcome.Skipped[0].Err, core.ErrNoData))
}

func TestRunner_Run_AllSkipped(t *testing.T) {
	opts, _ := newOptions(t, "X", "Y", "bad symbol")
	_, err := New(newFakes().sources(), opts).Run(context.Background())
	assert.True(t, errors.Is(err, core.ErrNoData), "got %v", err)
}

func TestRunner_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts, _ := newOptions(t, "A", "B")
	_, err := New(newFakes().sources(), opts).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// failingStorage rejects every write.
type failingStorage struct{ archive.Storage }

func (failingStorage) Write(ctx context.Context, path string, data []byte) error {
	return errors.New("disk full")
}

func TestRunner_Run_ResultsWriteFails(t *testing.T) {
	opts, store := newOptions(t, "A", "B")
	opts.Results = failingStorage{store}

	_, err := New(newFakes().sources(), opts).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), report.MergedFile)
}

func TestRunner_Run_MetricsDisabled(t *testing.T) {
	opts, store := newOptions(t, "A")
	opts.MetricsFile = ""

	_, err := New(newFakes().sources(), opts).Run(context.Background())
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "metrics.prom")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunner_Run_DuplicateSymbols(t *testing.T) {
	f := newFakes()
	opts, _ := newOptions(t, "A", "a", " A ", "B")
	opts.Backtest.TopN = 2
	obs, logs := observer.New(zap.WarnLevel)
	opts.Logger = zap.New(obs)

	outcome, err := New(f.sources(), opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, outcome.Assets)
	assert.Empty(t, outcome.Skipped)
	assert.Equal(t, 4, outcome.Rows)
	assert.Equal(t, []string{
		"resolve:A", "market:a-coin", "chain:A",
		"resolve:B", "market:b-coin", "chain:B",
	}, f.calls)
	assert.Len(t, logs.FilterMessage("ignoring duplicate symbol").All(), 2)
}
