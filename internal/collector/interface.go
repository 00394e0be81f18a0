package collector

import (
	"context"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
)

// Resolver maps a ticker to the price provider's asset identifier.
type Resolver interface {
	// Resolve returns core.ErrNotFound when the provider has no match.
	Resolve(ctx context.Context, symbol string) (string, error)
}

// MarketSource fetches daily price, market cap and volume for an asset.
type MarketSource interface {
	// FetchMarketSeries returns rows sorted by date, outer-joined across
	// the three upstream series.
	FetchMarketSeries(ctx context.Context, id string, start, end time.Time) ([]core.Record, error)
}

// ChainSource fetches daily on-chain activity for a ticker.
type ChainSource interface {
	// FetchChainMetrics returns a fixed window of daily rows ending at asOf.
	FetchChainMetrics(ctx context.Context, ticker string, asOf time.Time) ([]core.Record, error)
}
