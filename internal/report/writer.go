package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/newthinker/nvtrotate/internal/backtest"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
	"github.com/shopspring/decimal"
)

// Object names written to results storage.
const (
	BalanceFile   = "daily_balance.csv"
	ScatterFile   = "nvt_vs_return.csv"
	RebalanceFile = "rebalances.csv"
	SummaryFile   = "summary.json"
	MergedFile    = "all_merged.csv"
)

// Summary is the machine-readable run outcome.
type Summary struct {
	RunID          string          `json:"run_id"`
	GeneratedAt    time.Time       `json:"generated_at"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Symbols        []string        `json:"symbols"`
	Skipped        []string        `json:"skipped,omitempty"`
	TopN           int             `json:"top_n"`
	SeedBalance    decimal.Decimal `json:"seed_balance"`
	FinalValue     decimal.Decimal `json:"final_value"`
	AbsoluteReturn decimal.Decimal `json:"absolute_return"`
	RelativeReturn decimal.Decimal `json:"relative_return"`
	Stats          backtest.Stats  `json:"stats"`
}

// Input bundles what Write serializes.
type Input struct {
	Summary Summary
	Result  *backtest.Result
	Records []core.Record
}

// NewSummary fills the result-derived fields of a Summary.
func NewSummary(runID string, result *backtest.Result) Summary {
	return Summary{
		RunID:          runID,
		GeneratedAt:    time.Now().UTC(),
		StartDate:      result.StartDate.Format(core.DateLayout),
		EndDate:        result.EndDate.Format(core.DateLayout),
		SeedBalance:    result.SeedBalance,
		FinalValue:     result.FinalValue,
		AbsoluteReturn: result.AbsoluteReturn,
		RelativeReturn: result.RelativeReturn,
		Stats:          result.Stats,
	}
}

// Write persists the balance trajectory, the rebalance log, the filtered
// scatter table and the summary.
func Write(ctx context.Context, store archive.Storage, in Input) error {
	files := []struct {
		name   string
		encode func() ([]byte, error)
	}{
		{BalanceFile, func() ([]byte, error) { return BalanceCSV(in.Result) }},
		{RebalanceFile, func() ([]byte, error) { return RebalanceCSV(in.Result) }},
		{ScatterFile, func() ([]byte, error) { return ScatterCSV(Scatter(in.Records)) }},
		{SummaryFile, func() ([]byte, error) { return json.MarshalIndent(in.Summary, "", "  ") }},
	}

	for _, f := range files {
		data, err := f.encode()
		if err != nil {
			return fmt.Errorf("encoding %s: %w", f.name, err)
		}
		if err := store.Write(ctx, f.name, data); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}

// BalanceCSV renders the trajectory. Step 0 is the seed and has no date.
func BalanceCSV(result *backtest.Result) ([]byte, error) {
	rows := [][]string{{"step", "date", "value"}}
	for i, v := range result.Trajectory {
		date := ""
		if i > 0 && i-1 < len(result.Days) {
			date = result.Days[i-1].Date.Format(core.DateLayout)
		}
		rows = append(rows, []string{strconv.Itoa(i), date, v.String()})
	}
	return encodeCSV(rows)
}

// RebalanceCSV lists every position opened, one row per (date, symbol).
func RebalanceCSV(result *backtest.Result) ([]byte, error) {
	rows := [][]string{{"date", "rank", "symbol", "nvt", "price", "quantity"}}
	for _, d := range result.Days {
		for i, p := range d.Picks {
			rows = append(rows, []string{
				d.Date.Format(core.DateLayout),
				strconv.Itoa(i + 1),
				p.Symbol,
				strconv.FormatFloat(p.NVT, 'g', -1, 64),
				strconv.FormatFloat(p.Price, 'g', -1, 64),
				p.Quantity.String(),
			})
		}
	}
	return encodeCSV(rows)
}

// ScatterCSV renders scatter points.
func ScatterCSV(points []Point) ([]byte, error) {
	rows := [][]string{{"date", "symbol", "nvt", "pct_change"}}
	for _, p := range points {
		rows = append(rows, []string{
			p.Date.Format(core.DateLayout),
			p.Symbol,
			p.NVT.String(),
			p.PctChange.String(),
		})
	}
	return encodeCSV(rows)
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
