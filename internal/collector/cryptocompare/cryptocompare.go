package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/nvtrotate/internal/cache"
	"github.com/newthinker/nvtrotate/internal/collector"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"go.uber.org/zap"
)

const (
	baseURL      = "https://min-api.cryptocompare.com/data"
	defaultLimit = 2000

	// ChainProvider is the cache namespace for on-chain history.
	ChainProvider = "cryptocompare-chain"
)

// Config holds CryptoCompare client settings
type Config struct {
	BaseURL    string
	APIKey     string
	Limit      int
	Timeout    time.Duration
	Throttle   time.Duration
	MaxRetries int
}

// CryptoCompare fetches daily blockchain activity.
type CryptoCompare struct {
	http    *collector.HTTPClient
	cache   cache.Cache
	baseURL string
	apiKey  string
	limit   int
	logger  *zap.Logger
}

// New creates a CryptoCompare client. metrics and logger may be nil.
func New(cfg Config, c cache.Cache, m *metrics.Registry, logger *zap.Logger) *CryptoCompare {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}

	return &CryptoCompare{
		http: collector.NewHTTPClient(collector.HTTPOptions{
			Provider:   "cryptocompare",
			Timeout:    cfg.Timeout,
			Throttle:   cfg.Throttle,
			MaxRetries: cfg.MaxRetries,
			Metrics:    m,
			Logger:     logger,
		}),
		cache:   c,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limit:   cfg.Limit,
		logger:  logger.With(zap.String("provider", "cryptocompare")),
	}
}

func (c *CryptoCompare) Name() string {
	return "cryptocompare"
}

// histoResponse is the /blockchain/histo/day envelope. Data stays raw until
// Response has been checked, since error bodies carry an unrelated shape.
type histoResponse struct {
	Response string          `json:"Response"`
	Message  string          `json:"Message"`
	Data     json.RawMessage `json:"Data"`
}

type histoData struct {
	Data []histoEntry `json:"Data"`
}

type histoEntry struct {
	Time             int64    `json:"time"`
	TransactionCount int64    `json:"transaction_count"`
	CurrentSupply    *float64 `json:"current_supply"` // null upstream stays undefined
	NewAddresses     int64    `json:"new_addresses"`
	ActiveAddresses  int64    `json:"active_addresses"`
}

// FetchChainMetrics returns up to limit daily rows of chain activity for
// ticker ending at asOf. The window is fixed by the limit, not by the
// backtest range; the merge step trims it.
func (c *CryptoCompare) FetchChainMetrics(ctx context.Context, ticker string, asOf time.Time) ([]core.Record, error) {
	if err := collector.ValidateSymbol(ticker); err != nil {
		return nil, err
	}

	ts := strconv.FormatInt(asOf.Unix(), 10)
	key := cache.Key{Provider: ChainProvider, Params: []string{ticker, ts}}
	if t, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed, refetching", zap.String("key", key.String()), zap.Error(err))
	} else if ok {
		rows, err := decodeChain(t)
		if err == nil {
			return rows, nil
		}
		c.logger.Warn("refetching malformed cache entry", zap.String("key", key.String()), zap.Error(err))
	}

	q := url.Values{}
	q.Set("fsym", ticker)
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("toTs", ts)
	q.Set("api_key", c.apiKey)
	u := fmt.Sprintf("%s/blockchain/histo/day?%s", c.baseURL, q.Encode())

	var resp histoResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching chain history for %s: %w", ticker, err)
	}
	if strings.EqualFold(resp.Response, "Error") {
		return nil, core.WrapError(core.ErrUnavailable, fmt.Errorf("cryptocompare error for %s: %s", ticker, resp.Message))
	}

	var data histoData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, core.WrapError(core.ErrUnavailable, fmt.Errorf("decoding chain history: %w", err))
		}
	}
	if len(data.Data) == 0 {
		return nil, core.WrapError(core.ErrUnavailable, fmt.Errorf("no chain history for %s", ticker))
	}

	rows := make([]core.Record, 0, len(data.Data))
	for _, e := range data.Data {
		r := core.Record{
			Date:             core.Day(time.Unix(e.Time, 0)),
			Time:             e.Time,
			TransactionCount: e.TransactionCount,
			NewAddresses:     e.NewAddresses,
			ActiveAddresses:  e.ActiveAddresses,
		}
		if e.CurrentSupply != nil {
			r.CurrentSupply = core.Float(*e.CurrentSupply)
		}
		rows = append(rows, r)
	}

	c.logger.Debug("fetched chain history", zap.String("symbol", ticker), zap.Int("rows", len(rows)))

	// rows are still usable when the write fails; the next run refetches
	if err := c.cache.Put(ctx, key, encodeChain(rows)); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return rows, nil
}

var chainHeader = []string{"date", "time", "transaction_count", "current_supply", "new_addresses", "active_addresses"}

func encodeChain(rows []core.Record) *cache.Table {
	t := &cache.Table{Header: chainHeader, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Date.Format(core.DateLayout),
			strconv.FormatInt(r.Time, 10),
			strconv.FormatInt(r.TransactionCount, 10),
			r.CurrentSupply.String(),
			strconv.FormatInt(r.NewAddresses, 10),
			strconv.FormatInt(r.ActiveAddresses, 10),
		})
	}
	return t
}

func decodeChain(t *cache.Table) ([]core.Record, error) {
	cols := make([]int, len(chainHeader))
	for i, name := range chainHeader {
		if cols[i] = t.Column(name); cols[i] < 0 {
			return nil, core.WrapError(core.ErrCacheFailed, fmt.Errorf("chain table missing column %q", name))
		}
	}

	rows := make([]core.Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		r, err := parseChainRow(row, cols)
		if err != nil {
			return nil, core.WrapError(core.ErrCacheFailed, fmt.Errorf("row %d: %w", i, err))
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func parseChainRow(row []string, cols []int) (core.Record, error) {
	var (
		r   core.Record
		err error
	)
	if r.Date, err = core.ParseDate(row[cols[0]]); err != nil {
		return r, err
	}
	for j, dst := range map[int]*int64{1: &r.Time, 2: &r.TransactionCount, 4: &r.NewAddresses, 5: &r.ActiveAddresses} {
		if *dst, err = strconv.ParseInt(row[cols[j]], 10, 64); err != nil {
			return r, err
		}
	}
	r.CurrentSupply, err = core.ParseNullFloat64(row[cols[3]])
	return r, err
}
