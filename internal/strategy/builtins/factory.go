package builtins

import (
	"fmt"

	"fastquant/internal/config"
	"fastquant/internal/strategy"
)

// FromConfig builds a strategy Factory for the given configuration. The
// factory produces a fresh instance per call so concurrent runs never share
// state.
func FromConfig(cfg config.StrategyConfig) (strategy.Factory, error) {
	switch cfg.Type {
	case "moving_average":
		return func() (strategy.Strategy, error) {
			return NewSMACross(cfg.Name, cfg.ShortWindow, cfg.LongWindow, cfg.OrderQty), nil
		}, nil
	case "breakout":
		return func() (strategy.Strategy, error) {
			return NewBreakout(cfg.Name, cfg.Lookback, cfg.Buffer, cfg.OrderQty, cfg.AllowShort), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported strategy type: %s", cfg.Type)
	}
}

// FactoriesFromConfig builds one factory per configured strategy, preserving
// order.
func FactoriesFromConfig(cfgs []config.StrategyConfig) ([]strategy.Factory, error) {
	factories := make([]strategy.Factory, 0, len(cfgs))
	for i, sc := range cfgs {
		f, err := FromConfig(sc)
		if err != nil {
			return nil, fmt.Errorf("strategy %d (%s): %w", i, sc.Name, err)
		}
		factories = append(factories, f)
	}
	return factories, nil
}
