package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/nvtrotate/internal/cache"
	"github.com/newthinker/nvtrotate/internal/collector"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"github.com/newthinker/nvtrotate/internal/series"
	"go.uber.org/zap"
)

const (
	baseURL = "https://api.coingecko.com/api/v3"

	// Cache namespaces
	SearchProvider = "coingecko-search"
	MarketProvider = "coingecko-market"
)

// Config holds CoinGecko client settings
type Config struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	Precision  int
	Timeout    time.Duration
	Throttle   time.Duration
	MaxRetries int
}

// CoinGecko resolves tickers to coin ids and fetches market chart ranges.
type CoinGecko struct {
	http       *collector.HTTPClient
	cache      cache.Cache
	baseURL    string
	vsCurrency string
	precision  int
	logger     *zap.Logger
}

// New creates a CoinGecko client. metrics and logger may be nil.
func New(cfg Config, c cache.Cache, m *metrics.Registry, logger *zap.Logger) *CoinGecko {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = cfg.APIKey
	}

	return &CoinGecko{
		http: collector.NewHTTPClient(collector.HTTPOptions{
			Provider:   "coingecko",
			Timeout:    cfg.Timeout,
			Throttle:   cfg.Throttle,
			MaxRetries: cfg.MaxRetries,
			Headers:    headers,
			Metrics:    m,
			Logger:     logger,
		}),
		cache:      c,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		vsCurrency: cfg.VsCurrency,
		precision:  cfg.Precision,
		logger:     logger.With(zap.String("provider", "coingecko")),
	}
}

func (c *CoinGecko) Name() string {
	return "coingecko"
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"coins"`
}

// Resolve returns the coin id of the first search match for symbol.
func (c *CoinGecko) Resolve(ctx context.Context, symbol string) (string, error) {
	if err := collector.ValidateSymbol(symbol); err != nil {
		return "", err
	}

	key := cache.Key{Provider: SearchProvider, Params: []string{symbol}}
	if t, ok := c.cached(ctx, key); ok {
		if col := t.Column("coin_id"); col >= 0 && len(t.Rows) > 0 && t.Rows[0][col] != "" {
			return t.Rows[0][col], nil
		}
		c.logger.Warn("refetching malformed cache entry", zap.String("key", key.String()))
	}

	u := fmt.Sprintf("%s/search?query=%s", c.baseURL, url.QueryEscape(symbol))
	var resp searchResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return "", fmt.Errorf("searching %s: %w", symbol, err)
	}
	if len(resp.Coins) == 0 || resp.Coins[0].ID == "" {
		return "", core.WrapError(core.ErrNotFound, fmt.Errorf("no coin matches %s", symbol))
	}

	id := resp.Coins[0].ID
	c.store(ctx, key, &cache.Table{Header: []string{"coin_id"}, Rows: [][]string{{id}}})
	return id, nil
}

// cached looks key up. A failing cache read is logged and treated as a miss.
func (c *CoinGecko) cached(ctx context.Context, key cache.Key) (*cache.Table, bool) {
	t, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, refetching", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	return t, ok
}

// store persists t. Fetched data is still returned to the caller when the
// write fails; the next run refetches.
func (c *CoinGecko) store(ctx context.Context, key cache.Key, t *cache.Table) {
	if err := c.cache.Put(ctx, key, t); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// marketChart is the /coins/{id}/market_chart/range body: [[ms, value], ...] per series.
type marketChart struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
	Error        string      `json:"error"`
}

// FetchMarketSeries returns daily price, market cap and volume for id between
// start and end, outer-joined by day.
func (c *CoinGecko) FetchMarketSeries(ctx context.Context, id string, start, end time.Time) ([]core.Record, error) {
	from, to := strconv.FormatInt(start.Unix(), 10), strconv.FormatInt(end.Unix(), 10)
	key := cache.Key{Provider: MarketProvider, Params: []string{id, from, to}}

	if t, ok := c.cached(ctx, key); ok {
		rows, err := decodeMarket(t)
		if err == nil {
			return rows, nil
		}
		c.logger.Warn("refetching malformed cache entry", zap.String("key", key.String()), zap.Error(err))
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("from", from)
	q.Set("to", to)
	if c.precision > 0 {
		q.Set("precision", strconv.Itoa(c.precision))
	}
	u := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.baseURL, url.PathEscape(id), q.Encode())

	var chart marketChart
	if err := c.http.GetJSON(ctx, u, &chart); err != nil {
		return nil, fmt.Errorf("fetching market chart for %s: %w", id, err)
	}
	if chart.Error != "" {
		return nil, core.WrapError(core.ErrUnavailable, fmt.Errorf("coingecko error: %s", chart.Error))
	}
	if len(chart.Prices) == 0 {
		return nil, core.WrapError(core.ErrUnavailable, fmt.Errorf("no prices for %s", id))
	}

	rows := series.OuterJoinMarket(points(chart.Prices), points(chart.MarketCaps), points(chart.TotalVolumes))
	c.store(ctx, key, encodeMarket(rows))
	return rows, nil
}

func points(raw [][]float64) []series.Point {
	out := make([]series.Point, 0, len(raw))
	for _, p := range raw {
		if len(p) < 2 {
			continue
		}
		out = append(out, series.Point{Time: time.UnixMilli(int64(p[0])), Value: p[1]})
	}
	return out
}

var marketHeader = []string{"date", "price", "market_cap", "volume"}

func encodeMarket(rows []core.Record) *cache.Table {
	t := &cache.Table{Header: marketHeader, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Date.Format(core.DateLayout),
			r.Price.String(),
			r.MarketCap.String(),
			r.Volume.String(),
		})
	}
	return t
}

func decodeMarket(t *cache.Table) ([]core.Record, error) {
	cols := make([]int, len(marketHeader))
	for i, name := range marketHeader {
		if cols[i] = t.Column(name); cols[i] < 0 {
			return nil, core.WrapError(core.ErrCacheFailed, fmt.Errorf("market table missing column %q", name))
		}
	}

	rows := make([]core.Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		d, err := core.ParseDate(row[cols[0]])
		if err != nil {
			return nil, core.WrapError(core.ErrCacheFailed, fmt.Errorf("row %d: %w", i, err))
		}
		r := core.Record{Date: d}
		for j, dst := range []*core.NullFloat64{&r.Price, &r.MarketCap, &r.Volume} {
			if *dst, err = core.ParseNullFloat64(row[cols[j+1]]); err != nil {
				return nil, core.WrapError(core.ErrCacheFailed, fmt.Errorf("row %d: %w", i, err))
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}
