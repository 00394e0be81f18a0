package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/shopspring/decimal"
)

// Slices groups records into one slice per distinct date, ascending.
// Row order within a date is preserved.
func Slices(records []core.Record) []Slice {
	idx := make(map[time.Time]int)
	var out []Slice
	for _, r := range records {
		d := core.Day(r.Date)
		i, ok := idx[d]
		if !ok {
			i = len(out)
			idx[d] = i
			out = append(out, Slice{Date: d})
		}
		out[i].Rows = append(out[i].Rows, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Rank returns at most k tradable rows of the slice ordered by NVT
// descending, one per symbol. Ties are broken by symbol so the selection is
// deterministic.
func Rank(day Slice, k int) []core.Record {
	var eligible []core.Record
	for _, r := range day.Rows {
		if r.Tradable() {
			eligible = append(eligible, r)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].NVT.Float64 != eligible[j].NVT.Float64 {
			return eligible[i].NVT.Float64 > eligible[j].NVT.Float64
		}
		return eligible[i].Symbol < eligible[j].Symbol
	})

	out := make([]core.Record, 0, min(k, len(eligible)))
	held := make(map[string]bool, k)
	for _, r := range eligible {
		if len(out) == k {
			break
		}
		if held[r.Symbol] {
			continue
		}
		held[r.Symbol] = true
		out = append(out, r)
	}
	return out
}

// Value prices the holdings against the slice. A held symbol with no row,
// or with an undefined price, contributes zero.
func Value(state State, day Slice) decimal.Decimal {
	total := decimal.Zero
	for symbol, qty := range state.Holdings {
		r, ok := lookup(day, symbol)
		if !ok || !r.Price.Valid {
			continue
		}
		total = total.Add(qty.Mul(decimal.NewFromFloat(r.Price.Float64)))
	}
	return total
}

func lookup(day Slice, symbol string) (core.Record, bool) {
	for _, r := range day.Rows {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return core.Record{}, false
}

// Step applies one simulated date: value the holdings (the seed balance on
// the first date), append the value to the trajectory, then replace the
// holdings with equal budgets of value/K in the top-K ranked assets.
func Step(state State, traj Trajectory, day Slice, first bool, cfg Config) (State, Trajectory) {
	value := cfg.SeedBalance
	if !first {
		value = Value(state, day)
	}

	next := make(Trajectory, len(traj), len(traj)+1)
	copy(next, traj)
	next = append(next, value)

	holdings := make(map[string]decimal.Decimal, cfg.TopN)
	budget := value.Div(decimal.NewFromInt(int64(cfg.TopN)))
	for _, r := range Rank(day, cfg.TopN) {
		holdings[r.Symbol] = budget.Div(decimal.NewFromFloat(r.Price.Float64))
	}

	return State{Holdings: holdings}, next
}

// Run folds Step over every date of the long-format table.
func Run(ctx context.Context, records []core.Record, cfg Config) (*Result, error) {
	if cfg.TopN < 1 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("top_n must be at least 1, got %d", cfg.TopN))
	}
	if !cfg.SeedBalance.IsPositive() {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("seed balance must be positive, got %s", cfg.SeedBalance))
	}

	slices := Slices(records)
	if len(slices) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no rows to simulate"))
	}

	state := State{Holdings: map[string]decimal.Decimal{}}
	traj := Trajectory{cfg.SeedBalance}
	days := make([]Day, 0, len(slices))

	for i, day := range slices {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		state, traj = Step(state, traj, day, i == 0, cfg)
		days = append(days, Day{
			Date:  day.Date,
			Value: traj.Last(),
			Picks: picks(day, state, cfg.TopN),
		})
	}

	final := traj.Last()
	abs := final.Sub(cfg.SeedBalance)

	return &Result{
		StartDate:      slices[0].Date,
		EndDate:        slices[len(slices)-1].Date,
		SeedBalance:    cfg.SeedBalance,
		FinalValue:     final,
		AbsoluteReturn: abs,
		RelativeReturn: abs.Div(cfg.SeedBalance),
		Trajectory:     traj,
		Days:           days,
		Stats:          CalculateStats(traj),
	}, nil
}

func picks(day Slice, state State, k int) []Pick {
	ranked := Rank(day, k)
	out := make([]Pick, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Pick{
			Symbol:   r.Symbol,
			NVT:      r.NVT.Float64,
			Price:    r.Price.Float64,
			Quantity: state.Holdings[r.Symbol],
		})
	}
	return out
}
