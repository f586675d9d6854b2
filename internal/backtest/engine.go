package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/signal-backtest/internal/contracts"
	"github.com/wonny/signal-backtest/pkg/logger"
)

// State is a step of a back-test run
type State string

const (
	StateValidating  State = "validating"
	StateFetching    State = "fetching"
	StateScanning    State = "scanning"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// cancelCheckEvery is how many rows are scanned between context checks
const cancelCheckEvery = 1024

// Options tune how history is resolved
type Options struct {
	LagBasis LagBasis
	// HistoryDays extends the fetch this many calendar days before the start
	// date so early rows can resolve lags. Warm-up rows never count.
	HistoryDays int
}

// Result is the summary of one run
type Result struct {
	TotalReturn     decimal.Decimal // rounded to 2 decimal places
	NumObservations int
	RowsScanned     int // rows inside [start, end]
	SkippedRows     int // rows without enough history for either indicator
	Symbols         int
	TradingDays     int
}

// Engine runs signal back-tests against a price store
// ⭐ SSOT: back-test execution lives here only
type Engine struct {
	store  contracts.PriceStore
	logger *logger.Logger
	opts   Options
}

// NewEngine creates a new back-test engine. The engine keeps no per-run
// state, so one instance can serve concurrent runs.
func NewEngine(store contracts.PriceStore, log *logger.Logger, opts Options) *Engine {
	if opts.LagBasis == "" {
		opts.LagBasis = LagBasisSymbol
	}
	return &Engine{
		store:  store,
		logger: log,
		opts:   opts,
	}
}

// Run validates req and executes it
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	params, err := req.Validate()
	if err != nil {
		e.logger.WithError(err).WithField("state", StateFailed).Debug("Backtest request rejected")
		return nil, err
	}
	return e.Execute(ctx, *params)
}

// Execute runs already validated parameters
func (e *Engine) Execute(ctx context.Context, p Params) (*Result, error) {
	p.Start, p.End = contracts.Day(p.Start), contracts.Day(p.End)
	log := e.logger.WithFields(map[string]interface{}{
		"start_date":  p.Start.Format(contracts.DateLayout),
		"end_date":    p.End.Format(contracts.DateLayout),
		"indicator_1": p.Indicator1.String(),
		"indicator_2": p.Indicator2.String(),
		"operator":    string(p.Operator),
		"convention":  string(p.Convention),
		"lag_basis":   string(e.opts.LagBasis),
	})
	startTime := time.Now()

	result, err := e.execute(ctx, p, log)
	if err != nil {
		log.WithError(err).WithField("state", StateFailed).Warn("Backtest failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"state":            StateDone,
		"total_return":     result.TotalReturn.String(),
		"num_observations": result.NumObservations,
		"rows_scanned":     result.RowsScanned,
		"skipped_rows":     result.SkippedRows,
		"duration":         time.Since(startTime).String(),
	}).Info("Backtest completed")

	return result, nil
}

func (e *Engine) execute(ctx context.Context, p Params, log *logger.Logger) (*Result, error) {
	log.WithField("state", StateValidating).Debug("Checking boundary trading days")
	if err := e.checkTradingDay(ctx, "start_date", p.Start); err != nil {
		return nil, err
	}
	if err := e.checkTradingDay(ctx, "end_date", p.End); err != nil {
		return nil, err
	}

	log.WithField("state", StateFetching).Debug("Fetching price rows")
	fetchStart := p.Start.AddDate(0, 0, -e.opts.HistoryDays)
	rows, err := e.store.FetchRange(ctx, fetchStart, p.End)
	if err != nil {
		return nil, wrapError(KindStore, err, "fetch prices %s..%s",
			fetchStart.Format(contracts.DateLayout), p.End.Format(contracts.DateLayout))
	}
	if !anyInRange(rows, p.Start, p.End) {
		return nil, newError(KindNoData, "", "no data available for %s..%s",
			p.Start.Format(contracts.DateLayout), p.End.Format(contracts.DateLayout))
	}

	log.WithFields(map[string]interface{}{
		"state": StateScanning,
		"rows":  len(rows),
	}).Debug("Scanning rows")

	index := NewHistoryIndex(rows, e.opts.LagBasis)
	acc, err := scan(ctx, rows, index, p)
	if err != nil {
		return nil, err
	}

	stats := index.Stats()
	log.WithFields(map[string]interface{}{
		"state":        StateAggregating,
		"series_built": stats.SeriesBuilt,
		"lookups":      stats.Lookups,
		"memo_hits":    stats.MemoHits,
	}).Debug("Aggregating")

	return &Result{
		TotalReturn:     acc.total.Round(2),
		NumObservations: acc.observations,
		RowsScanned:     acc.scanned,
		SkippedRows:     acc.skipped,
		Symbols:         len(acc.symbols),
		TradingDays:     acc.days,
	}, nil
}

func (e *Engine) checkTradingDay(ctx context.Context, field string, date time.Time) error {
	ok, err := e.store.IsTradingDay(ctx, date)
	if err != nil {
		return wrapError(KindStore, err, "check trading day %s", date.Format(contracts.DateLayout))
	}
	if !ok {
		return newError(KindInvalidTradingDay, field, "%s is not a valid trading day", date.Format(contracts.DateLayout))
	}
	return nil
}

type accumulator struct {
	total        decimal.Decimal
	observations int
	scanned      int
	skipped      int
	days         int
	symbols      map[string]struct{}
}

// scan walks rows in the order received. Rows outside [start, end] only
// serve as history.
func scan(ctx context.Context, rows []contracts.PriceRecord, index *HistoryIndex, p Params) (*accumulator, error) {
	acc := &accumulator{total: decimal.Zero, symbols: make(map[string]struct{})}
	var lastDay time.Time

	for i, row := range rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("backtest aborted after %d rows: %w", i, err)
			}
		}

		day := contracts.Day(row.Date)
		if day.Before(p.Start) || day.After(p.End) {
			continue
		}

		acc.scanned++
		acc.symbols[row.Symbol] = struct{}{}
		if !day.Equal(lastDay) {
			acc.days++
			lastDay = day
		}

		v1 := index.Lookup(row.Symbol, day, p.Indicator1.PriceType, p.Indicator1.Lag)
		v2 := index.Lookup(row.Symbol, day, p.Indicator2.PriceType, p.Indicator2.Lag)
		if v1.IsNone() || v2.IsNone() {
			acc.skipped++
			continue
		}

		met, err := Evaluate(v1.Unwrap(), v2.Unwrap(), p.Operator)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}

		r, err := DailyReturn(row.Open, row.Close, p.Convention)
		if err != nil {
			return nil, err
		}
		acc.total = acc.total.Add(r)
		acc.observations++
	}

	return acc, nil
}

func anyInRange(rows []contracts.PriceRecord, start, end time.Time) bool {
	for _, r := range rows {
		d := contracts.Day(r.Date)
		if !d.Before(start) && !d.After(end) {
			return true
		}
	}
	return false
}
