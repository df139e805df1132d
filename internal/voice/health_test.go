package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakePinger implements Pinger for testing
type fakePinger struct {
	failFor map[string]bool
}

func (p *fakePinger) Ping(ctx context.Context, endpoint string) (time.Duration, error) {
	if p.failFor[endpoint] {
		return 0, errors.New("unreachable")
	}
	return 42 * time.Millisecond, nil
}

func TestCheckAllFoldsResultsIntoRegistry(t *testing.T) {
	disabled := ttsProvider("disabled", 3)
	disabled.Enabled = false

	reg := mustRegistry(t, ttsProvider("good", 1), ttsProvider("bad", 2), disabled)
	pinger := &fakePinger{failFor: map[string]bool{"https://bad.example.com/health": true}}

	h := NewHealthChecker(reg, pinger, time.Minute, time.Second)
	h.checkAll(context.Background())

	byName := make(map[string]HealthInfo)
	for _, p := range reg.Snapshot(CategoryTTS) {
		byName[p.Name] = p.Health
	}

	if got := byName["good"]; got.Status != HealthHealthy || got.AvgLatency != 42*time.Millisecond {
		t.Errorf("good provider health = %+v", got)
	}
	if got := byName["bad"]; got.Status != HealthDegraded || got.ConsecutiveFailures != 1 {
		t.Errorf("bad provider health = %+v", got)
	}
	if got := byName["disabled"]; got.Status != HealthUnknown {
		t.Errorf("disabled provider was probed: %+v", got)
	}
}

func TestHTTPPingerHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &HTTPPinger{}
	latency, err := p.Ping(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if latency <= 0 {
		t.Errorf("latency = %v, want positive", latency)
	}
}

func TestHTTPPingerConnectionError(t *testing.T) {
	p := &HTTPPinger{Client: &http.Client{Timeout: 100 * time.Millisecond}}
	if _, err := p.Ping(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Fatal("want error for unreachable endpoint")
	}
}

func TestHTTPPingerInvalidEndpoint(t *testing.T) {
	p := &HTTPPinger{}
	_, err := p.Ping(context.Background(), "://bad")
	if err == nil || !strings.Contains(err.Error(), "missing protocol scheme") {
		t.Fatalf("err = %v, want request build failure", err)
	}
}
