// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy factories.
package strategy

import (
	"context"
	"sort"

	"fastquant/internal/domain"
)

// OrderSink receives orders a strategy wants executed. The engine passes a
// sink into OnBar; strategies must not retain it beyond the call.
type OrderSink interface {
	// Submit hands an order to the execution engine. Submission never fails;
	// infeasible orders surface later as rejections in the run result.
	Submit(order domain.Order)
}

// Strategy is the interface that all trading strategies must implement.
// Implementations should be inexpensive in OnBar since they run inside the
// backtest loop.
type Strategy interface {
	// Name returns the unique identifier for this strategy instance.
	Name() string

	// OnStart is called once before the first bar. Implementations reset any
	// internal state here so an instance can be reused across runs.
	OnStart(ctx context.Context) error

	// OnBar is called for every incoming bar in source order. Orders may be
	// submitted synchronously through the sink.
	OnBar(ctx context.Context, bar domain.Bar, orders OrderSink) error

	// OnFinish is called once after the last bar.
	OnFinish(ctx context.Context) error
}

// Factory produces a fresh Strategy instance for one backtest run. Parallel
// runs call the factory once each so no state is shared between runs.
type Factory func() (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the factory was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
