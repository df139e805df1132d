package voice

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Category splits the provider registry into speech-to-text and
// text-to-speech halves.
type Category string

const (
	CategorySTT Category = "stt"
	CategoryTTS Category = "tts"
)

// HealthStatus is the coarse availability classification of one provider.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// unhealthyAfter is the consecutive-failure count that flips a provider from
// degraded to unhealthy.
const unhealthyAfter = 3

// HealthInfo is mutated only by health-check results, never by request
// handling.
type HealthInfo struct {
	Status              HealthStatus  `json:"status"`
	LastChecked         time.Time     `json:"last_checked"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	AvgLatency          time.Duration `json:"avg_latency"`
}

// ProviderInfo is one registry entry. Priority orders candidates; lower is
// preferred.
type ProviderInfo struct {
	Name          string     `json:"name"`
	Category      Category   `json:"category"`
	Kind          string     `json:"kind"`
	Endpoint      string     `json:"endpoint"`
	Priority      int        `json:"priority"`
	Enabled       bool       `json:"enabled"`
	CostPerMinute float64    `json:"cost_per_minute"`
	Health        HealthInfo `json:"health"`
}

// Validate surfaces malformed provider configuration at setup time.
func (p ProviderInfo) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("voice provider: name is required")
	}
	switch p.Category {
	case CategorySTT, CategoryTTS:
	default:
		return fmt.Errorf("voice provider %q: unknown category %q", p.Name, p.Category)
	}
	if strings.TrimSpace(p.Endpoint) == "" {
		return fmt.Errorf("voice provider %q: endpoint is required", p.Name)
	}
	return nil
}

// ProvidersFromJSON parses a JSON array of providers, validating each.
func ProvidersFromJSON(raw string) ([]ProviderInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var providers []ProviderInfo
	if err := json.Unmarshal([]byte(raw), &providers); err != nil {
		return nil, fmt.Errorf("parse voice providers: %w", err)
	}
	for _, p := range providers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

// Registry is the process-wide provider table: read-mostly, mutated only by
// periodic health checks. Reads copy under RLock so they never block on a
// health check in progress.
type Registry struct {
	mu        sync.RWMutex
	providers []*ProviderInfo
}

// NewRegistry builds the registry at factory init. Invalid entries fail here,
// before any request is served.
func NewRegistry(infos ...ProviderInfo) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[info.Name]; dup {
			return nil, fmt.Errorf("duplicate voice provider %q", info.Name)
		}
		seen[info.Name] = struct{}{}
		p := info
		if p.Health.Status == "" {
			p.Health.Status = HealthUnknown
		}
		r.providers = append(r.providers, &p)
	}
	return r, nil
}

// Snapshot returns a priority-sorted copy of the providers in a category.
func (r *Registry) Snapshot(category Category) []ProviderInfo {
	r.mu.RLock()
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Category == category {
			out = append(out, *p)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Names returns every registered provider name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name)
	}
	return names
}

// RecordCheck folds one health-check result into a provider's health info.
// Latency feeds a rolling average; failures accumulate until the provider is
// marked unhealthy.
func (r *Registry) RecordCheck(name string, latency time.Duration, checkErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		if p.Name != name {
			continue
		}
		p.Health.LastChecked = time.Now()
		if checkErr != nil {
			p.Health.ConsecutiveFailures++
			if p.Health.ConsecutiveFailures >= unhealthyAfter {
				p.Health.Status = HealthUnhealthy
			} else {
				p.Health.Status = HealthDegraded
			}
			return
		}

		p.Health.ConsecutiveFailures = 0
		p.Health.Status = HealthHealthy
		if p.Health.AvgLatency == 0 {
			p.Health.AvgLatency = latency
		} else {
			// Exponentially-weighted rolling average, biased to history.
			p.Health.AvgLatency = (p.Health.AvgLatency*7 + latency*3) / 10
		}
		return
	}
}
