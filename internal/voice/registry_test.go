package voice

import (
	"errors"
	"testing"
	"time"
)

func TestProviderInfoValidate(t *testing.T) {
	valid := ttsProvider("primary", 1)
	if err := valid.Validate(); err != nil {
		t.Errorf("valid provider rejected: %v", err)
	}

	noName := valid
	noName.Name = " "
	if err := noName.Validate(); err == nil {
		t.Error("want error for missing name")
	}

	badCategory := valid
	badCategory.Category = "video"
	if err := badCategory.Validate(); err == nil {
		t.Error("want error for unknown category")
	}

	noEndpoint := valid
	noEndpoint.Endpoint = ""
	if err := noEndpoint.Validate(); err == nil {
		t.Error("want error for missing endpoint")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(ttsProvider("primary", 1), ttsProvider("primary", 2))
	if err == nil {
		t.Fatal("want error for duplicate provider name")
	}
}

func TestProvidersFromJSON(t *testing.T) {
	if got, err := ProvidersFromJSON("  "); err != nil || got != nil {
		t.Errorf("blank input = (%v, %v), want (nil, nil)", got, err)
	}
	if _, err := ProvidersFromJSON("{not json"); err == nil {
		t.Error("want error for malformed JSON")
	}
	if _, err := ProvidersFromJSON(`[{"name":"x","category":"tts"}]`); err == nil {
		t.Error("want validation error for provider without endpoint")
	}

	providers, err := ProvidersFromJSON(`[
		{"name":"eleven","category":"tts","endpoint":"https://tts.example.com","priority":1,"enabled":true,"cost_per_minute":0.30},
		{"name":"whisper","category":"stt","endpoint":"https://stt.example.com","priority":1,"enabled":true}
	]`)
	if err != nil {
		t.Fatalf("ProvidersFromJSON: %v", err)
	}
	if len(providers) != 2 || providers[0].Name != "eleven" || providers[1].Category != CategorySTT {
		t.Errorf("providers = %+v", providers)
	}
}

func TestSnapshotFiltersAndSorts(t *testing.T) {
	stt := ProviderInfo{Name: "whisper", Category: CategorySTT, Endpoint: "https://stt.example.com", Enabled: true}
	reg := mustRegistry(t, ttsProvider("second", 2), stt, ttsProvider("first", 1))

	snap := reg.Snapshot(CategoryTTS)
	if len(snap) != 2 {
		t.Fatalf("snapshot = %d providers, want 2", len(snap))
	}
	if snap[0].Name != "first" || snap[1].Name != "second" {
		t.Errorf("snapshot order = [%s %s], want priority order", snap[0].Name, snap[1].Name)
	}

	// Defaulted health status on registration.
	if snap[0].Health.Status != HealthUnknown {
		t.Errorf("initial status = %q, want unknown", snap[0].Health.Status)
	}

	// Snapshot entries are copies: mutating one must not reach the registry.
	snap[0].Health.Status = HealthUnhealthy
	if reg.Snapshot(CategoryTTS)[0].Health.Status != HealthUnknown {
		t.Error("snapshot mutation leaked into the registry")
	}
}

func TestRecordCheckFailureTransitions(t *testing.T) {
	reg := mustRegistry(t, ttsProvider("primary", 1))
	failure := errors.New("connect timeout")

	status := func() HealthInfo { return reg.Snapshot(CategoryTTS)[0].Health }

	reg.RecordCheck("primary", 0, failure)
	if h := status(); h.Status != HealthDegraded || h.ConsecutiveFailures != 1 {
		t.Errorf("after 1 failure: %+v", h)
	}
	reg.RecordCheck("primary", 0, failure)
	if h := status(); h.Status != HealthDegraded || h.ConsecutiveFailures != 2 {
		t.Errorf("after 2 failures: %+v", h)
	}
	reg.RecordCheck("primary", 0, failure)
	if h := status(); h.Status != HealthUnhealthy || h.ConsecutiveFailures != 3 {
		t.Errorf("after 3 failures: %+v", h)
	}

	// One success fully recovers the provider.
	reg.RecordCheck("primary", 50*time.Millisecond, nil)
	if h := status(); h.Status != HealthHealthy || h.ConsecutiveFailures != 0 {
		t.Errorf("after recovery: %+v", h)
	}
}

func TestRecordCheckLatencyRollingAverage(t *testing.T) {
	reg := mustRegistry(t, ttsProvider("primary", 1))

	reg.RecordCheck("primary", 100*time.Millisecond, nil)
	if got := reg.Snapshot(CategoryTTS)[0].Health.AvgLatency; got != 100*time.Millisecond {
		t.Errorf("first sample avg = %v, want 100ms", got)
	}

	// (100*7 + 200*3) / 10 = 130ms, biased toward history.
	reg.RecordCheck("primary", 200*time.Millisecond, nil)
	if got := reg.Snapshot(CategoryTTS)[0].Health.AvgLatency; got != 130*time.Millisecond {
		t.Errorf("rolled avg = %v, want 130ms", got)
	}
}

func TestRecordCheckUnknownProviderIsNoop(t *testing.T) {
	reg := mustRegistry(t, ttsProvider("primary", 1))
	reg.RecordCheck("ghost", time.Second, nil)

	if h := reg.Snapshot(CategoryTTS)[0].Health; h.Status != HealthUnknown {
		t.Errorf("status = %q, want unchanged unknown", h.Status)
	}
}
