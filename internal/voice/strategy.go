package voice

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoProvider is returned when no candidate passes the strategy's filter.
var ErrNoProvider = errors.New("no suitable voice provider")

// maxFallbacks caps the recorded fallback chain.
const maxFallbacks = 3

// Strategy filters candidates during provider selection. Strategies are
// interchangeable; the candidate list is always priority-sorted first.
type Strategy interface {
	Name() string
	Accept(p ProviderInfo) bool
}

// HealthStrategy prefers providers with a clean health record. Providers
// that have never been checked are acceptable so selection works before the
// first health-check pass completes.
type HealthStrategy struct{}

func (HealthStrategy) Name() string { return "health" }

func (HealthStrategy) Accept(p ProviderInfo) bool {
	return p.Health.Status == HealthHealthy || p.Health.Status == HealthUnknown
}

// LatencyStrategy filters on the rolling average latency.
type LatencyStrategy struct {
	MaxLatency time.Duration
}

func (LatencyStrategy) Name() string { return "latency" }

func (s LatencyStrategy) Accept(p ProviderInfo) bool {
	if p.Health.Status == HealthUnhealthy {
		return false
	}
	// No samples yet counts as acceptable.
	return p.Health.AvgLatency == 0 || p.Health.AvgLatency <= s.MaxLatency
}

// CostStrategy filters on the configured per-minute cost ceiling.
type CostStrategy struct {
	MaxCostPerMinute float64
}

func (CostStrategy) Name() string { return "cost" }

func (s CostStrategy) Accept(p ProviderInfo) bool {
	if p.Health.Status == HealthUnhealthy {
		return false
	}
	return p.CostPerMinute <= s.MaxCostPerMinute
}

// StrategyFromName resolves a configured strategy name.
func StrategyFromName(name string, maxLatency time.Duration, maxCost float64) (Strategy, error) {
	switch name {
	case "", "health":
		return HealthStrategy{}, nil
	case "latency":
		return LatencyStrategy{MaxLatency: maxLatency}, nil
	case "cost":
		return CostStrategy{MaxCostPerMinute: maxCost}, nil
	default:
		return nil, fmt.Errorf("unknown provider strategy %q", name)
	}
}

// Selection is the chosen provider plus an ordered fallback chain.
type Selection struct {
	Provider  ProviderInfo
	Fallbacks []ProviderInfo
}

// SelectProvider runs one strategy over the priority-sorted enabled
// candidates of a category, picking the first that passes the filter. The
// remaining candidates, in order, become the fallback chain.
func SelectProvider(reg *Registry, category Category, strategy Strategy) (Selection, error) {
	candidates := make([]ProviderInfo, 0)
	for _, p := range reg.Snapshot(category) {
		if p.Enabled {
			candidates = append(candidates, p)
		}
	}

	for i, candidate := range candidates {
		if !strategy.Accept(candidate) {
			continue
		}
		sel := Selection{Provider: candidate}
		for _, rest := range candidates[i+1:] {
			if len(sel.Fallbacks) == maxFallbacks {
				break
			}
			sel.Fallbacks = append(sel.Fallbacks, rest)
		}
		return sel, nil
	}

	return Selection{}, fmt.Errorf("%w: category %s, strategy %s", ErrNoProvider, category, strategy.Name())
}
