package backtest

import (
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/shopspring/decimal"
)

// Config holds the simulation parameters
type Config struct {
	SeedBalance decimal.Decimal
	TopN        int // K, number of assets held after each rebalance
}

// Slice is every row of the long-format table for one date
type Slice struct {
	Date time.Time
	Rows []core.Record
}

// State is the portfolio between two rebalances: quantity held per symbol.
// There is no cash position; budget not deployed on a rebalance is dropped.
type State struct {
	Holdings map[string]decimal.Decimal
}

// Trajectory is the portfolio value series, starting with the seed balance
type Trajectory []decimal.Decimal

// Pick is one position opened on a rebalance
type Pick struct {
	Symbol   string
	NVT      float64
	Price    float64
	Quantity decimal.Decimal
}

// Day records the valuation and the new selection for one simulated date
type Day struct {
	Date  time.Time
	Value decimal.Decimal
	Picks []Pick
}

// Result holds the complete backtest output
type Result struct {
	StartDate      time.Time
	EndDate        time.Time
	SeedBalance    decimal.Decimal
	FinalValue     decimal.Decimal
	AbsoluteReturn decimal.Decimal
	RelativeReturn decimal.Decimal
	Trajectory     Trajectory
	Days           []Day
	Stats          Stats
}

// Stats holds performance statistics
type Stats struct {
	Days        int     `json:"days"`         // Simulated dates
	TotalReturn float64 `json:"total_return"` // Net return percentage
	MaxDrawdown float64 `json:"max_drawdown"` // Largest peak-to-trough decline, percentage
	SharpeRatio float64 `json:"sharpe_ratio"` // Risk-adjusted daily return (annualized)
}

// Floats converts the trajectory for charting and stats.
func (t Trajectory) Floats() []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = v.InexactFloat64()
	}
	return out
}

// Last returns the most recent value, or zero for an empty trajectory.
func (t Trajectory) Last() decimal.Decimal {
	if len(t) == 0 {
		return decimal.Zero
	}
	return t[len(t)-1]
}
