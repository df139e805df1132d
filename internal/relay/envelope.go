package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/ragrelay/server/internal/agent/model"
)

// InboundMessage is the envelope a channel adapter publishes on the inbound
// stream. The core never parses platform-specific payloads; by the time a
// message reaches this relay it is already normalized.
type InboundMessage struct {
	MessageID   string            `json:"message_id"`
	ThreadID    string            `json:"thread_id"`
	Channel     model.Channel     `json:"channel"`
	UserID      string            `json:"user_id"`
	Text        string            `json:"text"`
	Timestamp   time.Time         `json:"timestamp"`
	UserContext model.UserContext `json:"user_context"`
}

// Validate rejects envelopes the worker cannot route.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.ThreadID) == "" {
		return fmt.Errorf("inbound message: thread_id is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("inbound message: user_id is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("inbound message: text is required")
	}
	return nil
}

// VoiceHint tells the adapter which TTS provider to synthesize with, plus an
// ordered fallback chain.
type VoiceHint struct {
	Provider   string   `json:"provider"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	Confidence float64  `json:"confidence"`
}

// OutboundMessage is published back to the adapter for platform-specific
// rendering.
type OutboundMessage struct {
	MessageID    string     `json:"message_id"`
	ThreadID     string     `json:"thread_id"`
	Type         string     `json:"type"`
	Text         string     `json:"text,omitempty"`
	RequiresAuth bool       `json:"requires_auth,omitempty"`
	Voice        *VoiceHint `json:"voice,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

const (
	// OutboundTypeMessage carries a normal turn result.
	OutboundTypeMessage = "message"
	// OutboundTypeError carries a user-visible failure notice.
	OutboundTypeError = "error"
	// OutboundTypeRateLimited tells the adapter the user is throttled.
	OutboundTypeRateLimited = "rate_limited"
)
