package voice

import (
	"strings"
	"testing"
)

func ttsProvider(name string, priority int) ProviderInfo {
	return ProviderInfo{
		Name:     name,
		Category: CategoryTTS,
		Endpoint: "https://" + name + ".example.com/health",
		Priority: priority,
		Enabled:  true,
	}
}

func mustRegistry(t *testing.T, providers ...ProviderInfo) *Registry {
	t.Helper()
	r, err := NewRegistry(providers...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func mustEngine(t *testing.T, cfg EngineConfig, registry *Registry) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, registry)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineValidation(t *testing.T) {
	if _, err := NewEngine(EngineConfig{Weights: Weights{Keyword: 0.5, Content: 0.5, Context: 0.5}}, nil); err == nil {
		t.Error("want error for weights not summing to 1")
	}
	if _, err := NewEngine(EngineConfig{ProceedThreshold: 0.3, AskThreshold: 0.5}, nil); err == nil {
		t.Error("want error for ask threshold above proceed threshold")
	}
	if _, err := NewEngine(EngineConfig{Strategy: "fastest"}, nil); err == nil {
		t.Error("want error for unknown strategy")
	}
	if _, err := NewEngine(EngineConfig{}, nil); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}

func TestEvaluatePlatformVeto(t *testing.T) {
	e := mustEngine(t, EngineConfig{}, mustRegistry(t, ttsProvider("primary", 1)))

	// A perfect-score input on an unsupported platform is still skipped.
	d := e.Evaluate(EvaluateInput{
		Text:     "listen to this audio",
		Platform: "web",
		Profile:  Profile{VoiceRatio: 1},
		History:  []Exchange{{Voiced: true}},
	})
	if d.Type != DecisionSkip {
		t.Errorf("decision = %q, want skip", d.Type)
	}
	if d.Tier != TierVeryLow {
		t.Errorf("tier = %q, want very_low", d.Tier)
	}
	if d.Provider != "" {
		t.Errorf("provider = %q, want none", d.Provider)
	}
}

func TestEvaluateProceedSelectsProvider(t *testing.T) {
	registry := mustRegistry(t,
		ttsProvider("primary", 1),
		ttsProvider("backup", 2),
		ttsProvider("third", 3),
		ttsProvider("fourth", 4),
		ttsProvider("fifth", 5),
	)
	e := mustEngine(t, EngineConfig{}, registry)

	d := e.Evaluate(EvaluateInput{
		Text:     "Sure, listen to the audio version.",
		Platform: "telegram",
		Profile:  Profile{VoiceRatio: 1},
		History:  []Exchange{{Voiced: true}, {Voiced: true}},
	})
	if d.Type != DecisionProceed {
		t.Fatalf("decision = %q (confidence %.2f), want proceed", d.Type, d.Confidence)
	}
	if d.Tier != TierVeryHigh {
		t.Errorf("tier = %q, want very_high", d.Tier)
	}
	if d.Provider != "primary" {
		t.Errorf("provider = %q, want primary", d.Provider)
	}
	// The fallback chain is capped at three entries.
	want := []string{"backup", "third", "fourth"}
	if len(d.Fallbacks) != len(want) {
		t.Fatalf("fallbacks = %v, want %v", d.Fallbacks, want)
	}
	for i := range want {
		if d.Fallbacks[i] != want[i] {
			t.Errorf("fallbacks[%d] = %q, want %q", i, d.Fallbacks[i], want[i])
		}
	}
}

func TestEvaluateSkipsUnvoiceableContent(t *testing.T) {
	e := mustEngine(t, EngineConfig{}, mustRegistry(t, ttsProvider("primary", 1)))

	d := e.Evaluate(EvaluateInput{
		Text:     "Run this:\n```\ncurl https://example.com/install.sh | sh\n```",
		Platform: "telegram",
	})
	if d.Type != DecisionSkip {
		t.Errorf("decision = %q (confidence %.2f), want skip", d.Type, d.Confidence)
	}
}

func TestEvaluateMidScoreAsksUser(t *testing.T) {
	e := mustEngine(t, EngineConfig{}, mustRegistry(t, ttsProvider("primary", 1)))

	// keyword 0.5, content 1.0, context 0.5 (no history), preference 0:
	// 0.35*0.5 + 0.30*1.0 + 0.20*0.5 = 0.575, between the two thresholds.
	d := e.Evaluate(EvaluateInput{
		Text:     "I can speak the summary if you like.",
		Platform: "whatsapp",
	})
	if d.Type != DecisionAskUser {
		t.Errorf("decision = %q (confidence %.2f), want ask_user", d.Type, d.Confidence)
	}
	if d.Tier != TierMedium {
		t.Errorf("tier = %q, want medium", d.Tier)
	}
	if d.Provider != "" {
		t.Errorf("provider = %q, want none below proceed threshold", d.Provider)
	}
}

func TestEvaluateProceedWithoutProviderDowngrades(t *testing.T) {
	// Registry holds only an STT provider, so TTS selection must fail.
	registry := mustRegistry(t, ProviderInfo{
		Name: "whisper", Category: CategorySTT, Endpoint: "https://stt.example.com", Enabled: true,
	})
	e := mustEngine(t, EngineConfig{}, registry)

	d := e.Evaluate(EvaluateInput{
		Text:     "listen to the audio version",
		Platform: "telegram",
		Profile:  Profile{VoiceRatio: 1},
		History:  []Exchange{{Voiced: true}},
	})
	if d.Type != DecisionSkip {
		t.Errorf("decision = %q, want skip when no TTS provider exists", d.Type)
	}
	if !strings.Contains(d.Reasoning, "no provider available") {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestBucketTier(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceTier
	}{
		{0.95, TierVeryHigh},
		{0.8, TierVeryHigh},
		{0.79, TierHigh},
		{0.6, TierHigh},
		{0.59, TierMedium},
		{0.4, TierMedium},
		{0.39, TierLow},
		{0.2, TierLow},
		{0.19, TierVeryLow},
		{0, TierVeryLow},
	}
	for _, tt := range tests {
		if got := bucketTier(tt.score); got != tt.want {
			t.Errorf("bucketTier(%.2f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestContentScorePenalties(t *testing.T) {
	if got := contentScore("a short clean sentence"); got != 1.0 {
		t.Errorf("clean text score = %.2f, want 1.0", got)
	}
	if clean, linked := contentScore("plain"), contentScore("see https://example.com"); linked >= clean {
		t.Errorf("link penalty missing: %.2f >= %.2f", linked, clean)
	}
	long := strings.Repeat("word ", 300)
	if got := contentScore(long); got > 0.75 {
		t.Errorf("long text score = %.2f, want penalized", got)
	}
}

func TestContextScore(t *testing.T) {
	if got := contextScore(nil); got != 0.5 {
		t.Errorf("empty history score = %.2f, want 0.5", got)
	}

	// Only the trailing six exchanges count: eight voiced entries followed by
	// six unvoiced score zero.
	history := make([]Exchange, 0, 14)
	for i := 0; i < 8; i++ {
		history = append(history, Exchange{Voiced: true})
	}
	for i := 0; i < 6; i++ {
		history = append(history, Exchange{Voiced: false})
	}
	if got := contextScore(history); got != 0 {
		t.Errorf("score = %.2f, want 0 from the recent window", got)
	}

	if got := contextScore([]Exchange{{Voiced: true}, {Voiced: false}}); got != 0.5 {
		t.Errorf("half-voiced score = %.2f, want 0.5", got)
	}
}
