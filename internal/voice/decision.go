package voice

import (
	"fmt"
	"math"
	"strings"
	"time"

	logx "github.com/ragrelay/server/pkg/logger"
)

// DecisionType is the action taken for one candidate response.
type DecisionType string

const (
	DecisionProceed DecisionType = "proceed"
	DecisionAskUser DecisionType = "ask_user"
	DecisionSkip    DecisionType = "skip"
)

// ConfidenceTier buckets the composite score for reporting only; the
// decision itself is threshold logic on the raw score.
type ConfidenceTier string

const (
	TierVeryLow  ConfidenceTier = "very_low"
	TierLow      ConfidenceTier = "low"
	TierMedium   ConfidenceTier = "medium"
	TierHigh     ConfidenceTier = "high"
	TierVeryHigh ConfidenceTier = "very_high"
)

// Weights combine the four sub-scores; they must sum to 1.
type Weights struct {
	Keyword    float64
	Content    float64
	Context    float64
	Preference float64
}

// DefaultWeights reflect how strongly each signal predicts that a response
// should be spoken.
var DefaultWeights = Weights{
	Keyword:    0.35,
	Content:    0.30,
	Context:    0.20,
	Preference: 0.15,
}

const (
	defaultProceedThreshold = 0.65
	defaultAskThreshold     = 0.40
)

// Exchange is one prior message of the conversation, with whether it was
// delivered as voice.
type Exchange struct {
	Role   string
	Text   string
	Voiced bool
}

// Profile carries the historical user preference signal.
type Profile struct {
	// VoiceRatio is the fraction of past responses the user consumed as
	// voice, in [0,1].
	VoiceRatio float64
	Language   string
}

// EvaluateInput is everything the engine scores one candidate response on.
type EvaluateInput struct {
	Text     string
	History  []Exchange
	Profile  Profile
	Platform string
}

// Decision is the ephemeral computed verdict for one candidate response.
type Decision struct {
	Type       DecisionType
	Confidence float64
	Tier       ConfidenceTier
	Provider   string
	Fallbacks  []string
	Reasoning  string
}

// EngineConfig tunes the decision engine.
type EngineConfig struct {
	Weights            Weights
	ProceedThreshold   float64
	AskThreshold       float64
	SupportedPlatforms []string
	Strategy           string
	MaxLatency         time.Duration
	MaxCostPerMinute   float64
}

// Engine computes a weighted composite suitability score and, when text-to-
// speech is approved, selects a provider with a fallback chain.
type Engine struct {
	weights   Weights
	proceedAt float64
	askAt     float64
	supported map[string]struct{}
	registry  *Registry
	strategy  Strategy
}

// NewEngine validates the configuration up front: weights must sum to 1 and
// thresholds must be ordered.
func NewEngine(cfg EngineConfig, registry *Registry) (*Engine, error) {
	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	sum := weights.Keyword + weights.Content + weights.Context + weights.Preference
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("voice engine: weights sum to %.4f, want 1", sum)
	}

	proceedAt := cfg.ProceedThreshold
	if proceedAt == 0 {
		proceedAt = defaultProceedThreshold
	}
	askAt := cfg.AskThreshold
	if askAt == 0 {
		askAt = defaultAskThreshold
	}
	if askAt > proceedAt {
		return nil, fmt.Errorf("voice engine: ask threshold %.2f above proceed threshold %.2f", askAt, proceedAt)
	}

	strategy, err := StrategyFromName(cfg.Strategy, cfg.MaxLatency, cfg.MaxCostPerMinute)
	if err != nil {
		return nil, err
	}

	supported := make(map[string]struct{}, len(cfg.SupportedPlatforms))
	for _, p := range cfg.SupportedPlatforms {
		supported[p] = struct{}{}
	}
	if len(supported) == 0 {
		supported["telegram"] = struct{}{}
		supported["whatsapp"] = struct{}{}
	}

	return &Engine{
		weights:   weights,
		proceedAt: proceedAt,
		askAt:     askAt,
		supported: supported,
		registry:  registry,
		strategy:  strategy,
	}, nil
}

// Evaluate scores one candidate response. Platform incompatibility is a hard
// veto that overrides the weighted sum entirely.
func (e *Engine) Evaluate(in EvaluateInput) Decision {
	if _, ok := e.supported[in.Platform]; !ok {
		return Decision{
			Type:      DecisionSkip,
			Tier:      TierVeryLow,
			Reasoning: fmt.Sprintf("platform %q does not support voice playback", in.Platform),
		}
	}

	keyword := keywordScore(in.Text)
	content := contentScore(in.Text)
	context := contextScore(in.History)
	preference := clamp01(in.Profile.VoiceRatio)

	composite := e.weights.Keyword*keyword +
		e.weights.Content*content +
		e.weights.Context*context +
		e.weights.Preference*preference

	decision := Decision{
		Confidence: composite,
		Tier:       bucketTier(composite),
		Reasoning: fmt.Sprintf(
			"keyword=%.2f content=%.2f context=%.2f preference=%.2f composite=%.2f",
			keyword, content, context, preference, composite,
		),
	}

	switch {
	case composite >= e.proceedAt:
		decision.Type = DecisionProceed
	case composite >= e.askAt:
		decision.Type = DecisionAskUser
	default:
		decision.Type = DecisionSkip
	}

	if decision.Type == DecisionProceed && e.registry != nil {
		sel, err := SelectProvider(e.registry, CategoryTTS, e.strategy)
		if err != nil {
			logx.Warn().Err(err).Msg("No TTS provider available; downgrading voice decision to skip")
			decision.Type = DecisionSkip
			decision.Reasoning += "; no provider available"
		} else {
			decision.Provider = sel.Provider.Name
			for _, fb := range sel.Fallbacks {
				decision.Fallbacks = append(decision.Fallbacks, fb.Name)
			}
		}
	}

	return decision
}

// voiceKeywords are explicit cues that the user wants audio.
var voiceKeywords = []string{
	"read aloud", "read it aloud", "read this to me", "say it",
	"speak", "voice message", "voice note", "audio", "listen",
}

func keywordScore(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, kw := range voiceKeywords {
		if strings.Contains(lower, kw) {
			score += 0.5
		}
	}
	return clamp01(score)
}

// contentScore measures how well the text reads as speech: code blocks,
// links, or tables make poor audio, and so does extreme length.
func contentScore(text string) float64 {
	score := 1.0
	if strings.Contains(text, "```") {
		score -= 0.6
	}
	if strings.Contains(text, "http://") || strings.Contains(text, "https://") {
		score -= 0.3
	}
	if strings.Contains(text, "|") && strings.Contains(text, "\n") {
		score -= 0.2
	}
	if n := len(text); n > 1200 {
		score -= 0.3
	} else if n > 600 {
		score -= 0.15
	}
	return clamp01(score)
}

// contextScore measures conversational continuity: the more of the recent
// exchanges were voiced, the more natural it is to keep speaking.
func contextScore(history []Exchange) float64 {
	const lookback = 6
	start := len(history) - lookback
	if start < 0 {
		start = 0
	}
	recent := history[start:]
	if len(recent) == 0 {
		return 0.5
	}
	voiced := 0
	for _, ex := range recent {
		if ex.Voiced {
			voiced++
		}
	}
	return float64(voiced) / float64(len(recent))
}

func bucketTier(score float64) ConfidenceTier {
	switch {
	case score >= 0.8:
		return TierVeryHigh
	case score >= 0.6:
		return TierHigh
	case score >= 0.4:
		return TierMedium
	case score >= 0.2:
		return TierLow
	default:
		return TierVeryLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
