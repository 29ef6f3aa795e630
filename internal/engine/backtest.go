package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/feed"
	"fastquant/internal/strategy"
)

// Result is the immutable outcome of one backtest run.
type Result struct {
	StrategyName     string
	InitialCapital   float64
	Trades           []domain.Trade
	EquityCurve      []float64
	EquityTimestamps []time.Time
	CandlesProcessed int
	OrdersFilled     int
	OrdersRejected   int
	TotalFees        float64
	TotalSlippage    float64
	Portfolio        *Portfolio
}

// Backtester drives a bar stream through a strategy, an execution simulator,
// and a portfolio ledger in lockstep.
type Backtester struct {
	cfg  ExecConfig
	risk *RiskManager
	log  *slog.Logger
}

// NewBacktester creates a Backtester with the given execution parameters.
// risk may be nil to disable pre-trade checks.
func NewBacktester(cfg ExecConfig, risk *RiskManager) *Backtester {
	return &Backtester{
		cfg:  cfg,
		risk: risk,
		log:  slog.Default().With("component", "backtester"),
	}
}

// runSink forwards strategy submissions to the simulator after the optional
// pre-trade risk check. Its lifetime is scoped to exactly one run.
type runSink struct {
	sim  *Simulator
	risk *RiskManager
	pf   *Portfolio
}

// Submit implements strategy.OrderSink.
func (s *runSink) Submit(order domain.Order) {
	if s.risk != nil {
		if err := s.risk.CheckOrder(order, s.pf); err != nil {
			s.sim.rejectSubmission()
			return
		}
	}
	s.sim.Submit(order)
}

// Run executes one full backtest of strat over src. The run is strictly
// sequential: per bar, the portfolio is marked to the close, the strategy
// observes the bar (and may submit orders), the simulator is evaluated, and
// resulting trades are applied before the equity point is recorded.
//
// On a source or strategy error the partial result accumulated so far is
// returned alongside the error so diagnostics keep the equity curve.
func (bt *Backtester) Run(ctx context.Context, src feed.BarSource, strat strategy.Strategy) (*Result, error) {
	if strat == nil {
		return nil, errors.New("strategy is nil")
	}

	sim := NewSimulator(bt.cfg)
	pf := NewPortfolio(bt.cfg.InitialCapital)
	sink := &runSink{sim: sim, risk: bt.risk, pf: pf}
	result := &Result{
		StrategyName:   strat.Name(),
		InitialCapital: bt.cfg.InitialCapital,
		Portfolio:      pf,
	}

	if err := strat.OnStart(ctx); err != nil {
		return result, fmt.Errorf("strategy %s OnStart: %w", strat.Name(), err)
	}

	var barErr error
	streamErr := src.Stream(ctx, func(bar domain.Bar) bool {
		sym := domain.NormalizeSymbol(bar.Symbol)
		pf.MarkPrice(sym, bar.Close)

		if err := strat.OnBar(ctx, bar, sink); err != nil {
			barErr = fmt.Errorf("strategy %s OnBar: %w", strat.Name(), err)
			return false
		}

		for _, trade := range sim.Evaluate(bar) {
			pf.ApplyTrade(trade)
			result.Trades = append(result.Trades, trade)
		}

		result.EquityCurve = append(result.EquityCurve, pf.Equity())
		result.EquityTimestamps = append(result.EquityTimestamps, bar.Timestamp)
		result.CandlesProcessed++
		return true
	})

	if finErr := strat.OnFinish(ctx); finErr != nil && barErr == nil && streamErr == nil {
		streamErr = fmt.Errorf("strategy %s OnFinish: %w", strat.Name(), finErr)
	}

	sim.ExpireAll()
	result.OrdersFilled = sim.Filled()
	result.OrdersRejected = sim.Rejected()
	result.TotalFees = sim.TotalFees()
	result.TotalSlippage = sim.TotalSlippage()

	// Downstream reporting never sees an empty curve.
	if len(result.EquityCurve) == 0 {
		result.EquityCurve = append(result.EquityCurve, pf.Equity())
		result.EquityTimestamps = append(result.EquityTimestamps, time.Now().UTC())
	}

	if barErr != nil {
		return result, barErr
	}
	if streamErr != nil {
		return result, fmt.Errorf("bar stream: %w", streamErr)
	}

	bt.log.Debug("run complete",
		"strategy", strat.Name(),
		"candles", result.CandlesProcessed,
		"trades", len(result.Trades),
		"filled", result.OrdersFilled,
		"rejected", result.OrdersRejected,
	)
	return result, nil
}

// RunAll executes one independent run per factory over sources produced by
// newSource and returns the results in factory order. A single factory runs
// synchronously in the caller; multiple factories run each strategy on its
// own goroutine with a private simulator and portfolio, joined before
// returning. A factory returning a nil strategy or an error is fatal for its
// run.
func (bt *Backtester) RunAll(ctx context.Context, newSource feed.SourceFactory, factories []strategy.Factory) ([]*Result, error) {
	results := make([]*Result, len(factories))
	if len(factories) == 0 {
		return results, nil
	}

	runOne := func(i int) error {
		strat, err := factories[i]()
		if err != nil {
			return fmt.Errorf("strategy factory %d: %w", i, err)
		}
		if strat == nil {
			return fmt.Errorf("strategy factory %d returned nil", i)
		}
		res, err := bt.Run(ctx, newSource(), strat)
		results[i] = res
		if err != nil {
			return fmt.Errorf("run %d (%s): %w", i, strat.Name(), err)
		}
		return nil
	}

	if len(factories) == 1 {
		err := runOne(0)
		return results, err
	}

	errs := make([]error, len(factories))
	var wg sync.WaitGroup
	for i := range factories {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = runOne(i)
		}(i)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
