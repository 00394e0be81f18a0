// Package pipeline drives a full run: collect every asset of the universe,
// merge, simulate and persist the results.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/nvtrotate/internal/backtest"
	"github.com/newthinker/nvtrotate/internal/collector"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/logger"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"github.com/newthinker/nvtrotate/internal/report"
	"github.com/newthinker/nvtrotate/internal/series"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
	"go.uber.org/zap"
)

// Stages an asset can fail at
const (
	StageResolve = "resolve"
	StageMarket  = "market"
	StageChain   = "chain"
	StageMerge   = "merge"
)

// Sources are the upstream collaborators of a run.
type Sources struct {
	Resolver collector.Resolver
	Market   collector.MarketSource
	Chain    collector.ChainSource
}

// Options configures a Runner.
type Options struct {
	Universe    []string
	Start       time.Time
	End         time.Time
	Backtest    backtest.Config
	Results     archive.Storage
	Metrics     *metrics.Registry
	MetricsFile string // empty disables the exposition file
	Logger      *zap.Logger
	Out         io.Writer // receives the one-line return summary; may be nil
}

// Skip describes an asset left out of the run.
type Skip struct {
	Symbol string
	Stage  string
	Err    error
}

// Outcome is what a completed run produced.
type Outcome struct {
	RunID   string
	Assets  []string
	Skipped []Skip
	Rows    int
	Result  *backtest.Result
}

// Runner executes the pipeline. Assets are processed one at a time in
// universe order.
type Runner struct {
	src    Sources
	opts   Options
	logger *zap.Logger
}

// New creates a Runner.
func New(src Sources, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{src: src, opts: opts, logger: opts.Logger}
}

// Run collects, merges, simulates and writes results. It fails only when
// no asset survived collection or results cannot be written.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	runID := uuid.NewString()
	log := logger.ForRun(r.logger, runID)

	log.Info("run starting",
		zap.Int("universe", len(r.opts.Universe)),
		zap.String("start", r.opts.Start.Format(core.DateLayout)),
		zap.String("end", r.opts.End.Format(core.DateLayout)),
		zap.Int("top_n", r.opts.Backtest.TopN),
	)

	tables, assets, skipped, err := r.collect(ctx, log)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("all %d assets were skipped", len(skipped)))
	}

	merged := series.Union(tables...)
	if err := r.writeMerged(ctx, merged); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := backtest.Run(ctx, merged, r.opts.Backtest)
	if err != nil {
		return nil, fmt.Errorf("running backtest: %w", err)
	}
	r.opts.Metrics.RecordBacktest(
		result.Stats.Days,
		result.FinalValue.InexactFloat64(),
		result.RelativeReturn.InexactFloat64(),
		time.Since(start).Seconds(),
	)

	summary := report.NewSummary(runID, result)
	summary.Symbols = assets
	summary.TopN = r.opts.Backtest.TopN
	for _, s := range skipped {
		summary.Skipped = append(summary.Skipped, s.Symbol)
	}
	if err := report.Write(ctx, r.opts.Results, report.Input{Summary: summary, Result: result, Records: merged}); err != nil {
		return nil, err
	}
	if err := r.writeMetrics(ctx); err != nil {
		return nil, err
	}

	pct := result.RelativeReturn.InexactFloat64() * 100
	log.Info("run complete",
		zap.Int("assets", len(assets)),
		zap.Int("skipped", len(skipped)),
		zap.Int("rows", len(merged)),
		zap.Int("days", result.Stats.Days),
		zap.String("final_value", result.FinalValue.StringFixed(2)),
		zap.Float64("total_return_pct", pct),
	)
	if r.opts.Out != nil {
		fmt.Fprintf(r.opts.Out, "Total Return: %.2f%%\n", pct)
	}

	return &Outcome{
		RunID:   runID,
		Assets:  assets,
		Skipped: skipped,
		Rows:    len(merged),
		Result:  result,
	}, nil
}

// collect returns the merged table of every surviving asset. A cancelled
// context aborts the run; any other error only skips the asset.
func (r *Runner) collect(ctx context.Context, log *zap.Logger) ([][]core.Record, []string, []Skip, error) {
	var (
		tables  [][]core.Record
		assets  []string
		skipped []Skip
		seen    = make(map[string]bool, len(r.opts.Universe))
	)

	for _, raw := range r.opts.Universe {
		if ctx.Err() != nil {
			return nil, nil, nil, ctx.Err()
		}

		symbol := collector.NormalizeSymbol(raw)
		if seen[symbol] {
			log.Warn("ignoring duplicate symbol", zap.String("symbol", symbol), zap.String("entry", raw))
			continue
		}
		seen[symbol] = true

		rows, stage, err := r.collectAsset(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, nil, ctx.Err()
			}
			reason := strings.ToLower(core.Code(err))
			log.Warn("skipping asset",
				zap.String("symbol", symbol),
				zap.String("stage", stage),
				zap.String("reason", reason),
				zap.Error(err),
			)
			r.opts.Metrics.RecordSkip(stage, reason)
			skipped = append(skipped, Skip{Symbol: symbol, Stage: stage, Err: err})
			continue
		}

		log.Debug("asset merged", zap.String("symbol", symbol), zap.Int("rows", len(rows)))
		r.opts.Metrics.RecordAsset(len(rows))
		tables = append(tables, rows)
		assets = append(assets, symbol)
	}

	return tables, assets, skipped, nil
}

func (r *Runner) collectAsset(ctx context.Context, symbol string) ([]core.Record, string, error) {
	if err := collector.ValidateSymbol(symbol); err != nil {
		return nil, StageResolve, err
	}

	id, err := r.src.Resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, StageResolve, err
	}

	market, err := r.src.Market.FetchMarketSeries(ctx, id, r.opts.Start, r.opts.End)
	if err != nil {
		return nil, StageMarket, err
	}

	chain, err := r.src.Chain.FetchChainMetrics(ctx, symbol, r.opts.End)
	if err != nil {
		return nil, StageChain, err
	}

	rows := series.MergeAndDerive(market, chain, symbol)
	if len(rows) == 0 {
		return nil, StageMerge, core.WrapError(core.ErrNoData,
			fmt.Errorf("no common dates between %d market and %d chain rows", len(market), len(chain)))
	}
	return rows, "", nil
}

func (r *Runner) writeMerged(ctx context.Context, merged []core.Record) error {
	var buf bytes.Buffer
	if err := series.WriteCSV(&buf, merged); err != nil {
		return fmt.Errorf("encoding %s: %w", report.MergedFile, err)
	}
	if err := r.opts.Results.Write(ctx, report.MergedFile, buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", report.MergedFile, err)
	}
	return nil
}

func (r *Runner) writeMetrics(ctx context.Context) error {
	if r.opts.Metrics == nil || r.opts.MetricsFile == "" {
		return nil
	}
	data, err := r.opts.Metrics.Export()
	if err != nil {
		return err
	}
	if err := r.opts.Results.Write(ctx, r.opts.MetricsFile, data); err != nil {
		return fmt.Errorf("writing %s: %w", r.opts.MetricsFile, err)
	}
	return nil
}
