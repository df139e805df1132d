package voice

import (
	"context"
	"net/http"
	"sync"
	"time"

	logx "github.com/ragrelay/server/pkg/logger"
)

// Pinger probes one provider endpoint and reports the observed latency.
type Pinger interface {
	Ping(ctx context.Context, endpoint string) (time.Duration, error)
}

// HTTPPinger probes endpoints with a HEAD request.
type HTTPPinger struct {
	Client *http.Client
}

func (p *HTTPPinger) Ping(ctx context.Context, endpoint string) (time.Duration, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}

// HealthChecker periodically probes every registered provider and folds the
// results into the registry. Requests reading the registry never wait on a
// check in progress: they read snapshots.
type HealthChecker struct {
	registry *Registry
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewHealthChecker(registry *Registry, pinger Pinger, interval, timeout time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		registry: registry,
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
	}
}

// Run blocks until the context is cancelled, probing all providers each
// interval. It performs one immediate pass on startup.
func (h *HealthChecker) Run(ctx context.Context) {
	h.checkAll(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkAll(ctx)
		}
	}
}

func (h *HealthChecker) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, category := range []Category{CategorySTT, CategoryTTS} {
		for _, provider := range h.registry.Snapshot(category) {
			if !provider.Enabled {
				continue
			}
			wg.Add(1)
			go func(p ProviderInfo) {
				defer wg.Done()
				checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
				defer cancel()

				latency, err := h.pinger.Ping(checkCtx, p.Endpoint)
				h.registry.RecordCheck(p.Name, latency, err)
				if err != nil {
					logx.Warn().Err(err).Str("provider", p.Name).Msg("Voice provider health check failed")
				}
			}(provider)
		}
	}
	wg.Wait()
}
