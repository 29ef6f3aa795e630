package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/feed"
	"fastquant/internal/strategy"
)

// scriptedStrategy submits a fixed order on chosen bar indexes.
type scriptedStrategy struct {
	name    string
	orders  map[int]domain.Order
	barErr  error
	errAt   int
	seen    int
	started bool
	done    bool
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) OnStart(context.Context) error {
	s.started = true
	return nil
}

func (s *scriptedStrategy) OnBar(_ context.Context, bar domain.Bar, sink strategy.OrderSink) error {
	idx := s.seen
	s.seen++
	if s.barErr != nil && idx == s.errAt {
		return s.barErr
	}
	if order, ok := s.orders[idx]; ok {
		order.Timestamp = bar.Timestamp
		sink.Submit(order)
	}
	return nil
}

func (s *scriptedStrategy) OnFinish(context.Context) error {
	s.done = true
	return nil
}

func bars(closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func TestRunEquityCurveMatchesCandles(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	strat := &scriptedStrategy{
		name: "scripted",
		orders: map[int]domain.Order{
			1: {Side: domain.SideBuy, Type: domain.OrderTypeMarket, Qty: 10, Symbol: "TEST"},
		},
	}

	res, err := bt.Run(context.Background(), feed.NewSliceSource(bars(100, 102, 104, 103)), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strat.started || !strat.done {
		t.Errorf("lifecycle: started=%v done=%v, want both true", strat.started, strat.done)
	}
	if res.CandlesProcessed != 4 {
		t.Errorf("CandlesProcessed = %d, want 4", res.CandlesProcessed)
	}
	if len(res.EquityCurve) != res.CandlesProcessed {
		t.Errorf("equity curve length %d != candles %d", len(res.EquityCurve), res.CandlesProcessed)
	}
	if len(res.EquityTimestamps) != len(res.EquityCurve) {
		t.Errorf("timestamps length %d != curve length %d", len(res.EquityTimestamps), len(res.EquityCurve))
	}

	// The order submitted on bar 1 fills the same bar at its open (102):
	// equity = 100000 - 10*102 + 10*102 = 100000 at bar 1's close mark 102,
	// then +10*2 when the close moves to 104.
	if len(res.Trades) != 1 || !almostEqual(res.Trades[0].Price, 102) {
		t.Fatalf("trades = %+v, want one fill at 102", res.Trades)
	}
	if !almostEqual(res.EquityCurve[1], 100000) {
		t.Errorf("equity[1] = %v, want 100000", res.EquityCurve[1])
	}
	if !almostEqual(res.EquityCurve[2], 100020) {
		t.Errorf("equity[2] = %v, want 100020", res.EquityCurve[2])
	}
	if !almostEqual(res.EquityCurve[3], 100010) {
		t.Errorf("equity[3] = %v, want 100010", res.EquityCurve[3])
	}
}

func TestRunEmptyStreamYieldsSyntheticPoint(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	res, err := bt.Run(context.Background(), feed.NewSliceSource(nil), &scriptedStrategy{name: "noop"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CandlesProcessed != 0 {
		t.Errorf("CandlesProcessed = %d, want 0", res.CandlesProcessed)
	}
	if len(res.EquityCurve) != 1 {
		t.Fatalf("equity curve length = %d, want 1", len(res.EquityCurve))
	}
	if !almostEqual(res.EquityCurve[0], 100000) {
		t.Errorf("equity[0] = %v, want initial capital", res.EquityCurve[0])
	}
}

func TestRunUnfilledOrdersExpireAtEnd(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	strat := &scriptedStrategy{
		name: "scripted",
		orders: map[int]domain.Order{
			0: {Side: domain.SideSell, Type: domain.OrderTypeLimit, Price: 1000, Qty: 1, Symbol: "TEST"},
		},
	}
	res, err := bt.Run(context.Background(), feed.NewSliceSource(bars(100, 101)), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OrdersFilled != 0 {
		t.Errorf("OrdersFilled = %d, want 0", res.OrdersFilled)
	}
	if res.OrdersRejected != 1 {
		t.Errorf("OrdersRejected = %d, want 1", res.OrdersRejected)
	}
}

func TestRunStrategyErrorKeepsPartialResult(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	wantErr := errors.New("indicator blew up")
	strat := &scriptedStrategy{name: "failing", barErr: wantErr, errAt: 2}

	res, err := bt.Run(context.Background(), feed.NewSliceSource(bars(100, 101, 102, 103)), strat)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
	if res == nil {
		t.Fatal("result is nil, want partial result")
	}
	// Bars 0 and 1 completed before the failure on bar 2.
	if res.CandlesProcessed != 2 {
		t.Errorf("CandlesProcessed = %d, want 2", res.CandlesProcessed)
	}
	if len(res.EquityCurve) != 2 {
		t.Errorf("equity curve length = %d, want 2", len(res.EquityCurve))
	}
}

func TestRunRiskManagerRejectsOversizedOrders(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), &RiskManager{MaxOrderQty: 5})
	strat := &scriptedStrategy{
		name: "scripted",
		orders: map[int]domain.Order{
			0: {Side: domain.SideBuy, Type: domain.OrderTypeMarket, Qty: 10, Symbol: "TEST"},
		},
	}
	res, err := bt.Run(context.Background(), feed.NewSliceSource(bars(100, 101)), strat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %+v, want none", res.Trades)
	}
	if res.OrdersRejected != 1 {
		t.Errorf("OrdersRejected = %d, want 1", res.OrdersRejected)
	}
}

func TestRunAllPreservesFactoryOrder(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	factories := make([]strategy.Factory, 4)
	for i := range factories {
		name := fmt.Sprintf("strat-%d", i)
		qty := float64(i + 1)
		factories[i] = func() (strategy.Strategy, error) {
			return &scriptedStrategy{
				name: name,
				orders: map[int]domain.Order{
					0: {Side: domain.SideBuy, Type: domain.OrderTypeMarket, Qty: qty, Symbol: "TEST"},
				},
			}, nil
		}
	}

	data := bars(100, 102, 104)
	newSource := func() feed.BarSource { return feed.NewSliceSource(data) }

	results, err := bt.RunAll(context.Background(), newSource, factories)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, res := range results {
		if res == nil {
			t.Fatalf("results[%d] is nil", i)
		}
		wantName := fmt.Sprintf("strat-%d", i)
		if res.StrategyName != wantName {
			t.Errorf("results[%d].StrategyName = %q, want %q", i, res.StrategyName, wantName)
		}
		// Each run's fill quantity identifies its strategy; runs share no
		// simulator or portfolio state.
		if len(res.Trades) != 1 {
			t.Fatalf("results[%d] has %d trades, want 1", i, len(res.Trades))
		}
		if !almostEqual(res.Trades[0].Qty, float64(i+1)) {
			t.Errorf("results[%d] fill qty = %v, want %v", i, res.Trades[0].Qty, i+1)
		}
		if len(res.EquityCurve) != len(data) {
			t.Errorf("results[%d] curve length = %d, want %d", i, len(res.EquityCurve), len(data))
		}
	}
}

func TestRunAllIndependentRunsIdenticalInputs(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	mk := func() (strategy.Strategy, error) {
		return &scriptedStrategy{
			name: "twin",
			orders: map[int]domain.Order{
				0: {Side: domain.SideBuy, Type: domain.OrderTypeMarket, Qty: 3, Symbol: "TEST"},
			},
		}, nil
	}

	data := bars(100, 105, 110)
	results, err := bt.RunAll(context.Background(),
		func() feed.BarSource { return feed.NewSliceSource(data) },
		[]strategy.Factory{mk, mk})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	a, b := results[0], results[1]
	if len(a.EquityCurve) != len(b.EquityCurve) {
		t.Fatalf("curve lengths differ: %d vs %d", len(a.EquityCurve), len(b.EquityCurve))
	}
	for i := range a.EquityCurve {
		if !almostEqual(a.EquityCurve[i], b.EquityCurve[i]) {
			t.Errorf("equity[%d] differs: %v vs %v", i, a.EquityCurve[i], b.EquityCurve[i])
		}
	}
	if a.Portfolio == b.Portfolio {
		t.Error("runs share a portfolio")
	}
}

func TestRunAllFactoryErrorDoesNotAbortOthers(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	factoryErr := errors.New("bad params")
	factories := []strategy.Factory{
		func() (strategy.Strategy, error) { return nil, factoryErr },
		func() (strategy.Strategy, error) { return &scriptedStrategy{name: "healthy"}, nil },
	}

	results, err := bt.RunAll(context.Background(),
		func() feed.BarSource { return feed.NewSliceSource(bars(100, 101)) },
		factories)
	if !errors.Is(err, factoryErr) {
		t.Fatalf("err = %v, want wrapped %v", err, factoryErr)
	}
	if results[0] != nil {
		t.Errorf("results[0] = %+v, want nil for failed factory", results[0])
	}
	if results[1] == nil || results[1].CandlesProcessed != 2 {
		t.Errorf("results[1] = %+v, want a completed run", results[1])
	}
	if !strings.Contains(err.Error(), "factory 0") {
		t.Errorf("error %q does not identify the failing factory", err)
	}
}

func TestRunAllEmptyFactories(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	results, err := bt.RunAll(context.Background(),
		func() feed.BarSource { return feed.NewSliceSource(nil) }, nil)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

// fanOutSource blocks each Stream call on a shared gate so the test can
// prove every run is in flight at once before any of them makes progress.
type fanOutSource struct {
	data    []domain.Bar
	started chan<- struct{}
	gate    <-chan struct{}
}

func (f *fanOutSource) Stream(ctx context.Context, fn func(domain.Bar) bool) error {
	f.started <- struct{}{}
	<-f.gate

	for _, bar := range f.data {
		if !fn(bar) {
			return nil
		}
	}
	return nil
}

func TestRunAllRunsConcurrently(t *testing.T) {
	bt := NewBacktester(DefaultExecConfig(), nil)
	gate := make(chan struct{})
	started := make(chan struct{}, 3)

	newSource := func() feed.BarSource {
		return &fanOutSource{data: bars(100, 101), started: started, gate: gate}
	}
	mk := func() (strategy.Strategy, error) {
		return &scriptedStrategy{name: "concurrent"}, nil
	}

	done := make(chan struct{})
	var results []*Result
	var runErr error
	go func() {
		results, runErr = bt.RunAll(context.Background(), newSource, []strategy.Factory{mk, mk, mk})
		close(done)
	}()

	// All three streams must be in flight before any is released.
	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for run %d to start", i)
		}
	}
	close(gate)
	<-done

	if runErr != nil {
		t.Fatalf("RunAll: %v", runErr)
	}
	for i, res := range results {
		if res == nil || res.CandlesProcessed != 2 {
			t.Errorf("results[%d] = %+v, want 2 candles", i, res)
		}
	}
}
