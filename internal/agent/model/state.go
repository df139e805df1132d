package model

import (
	"github.com/cloudwego/eino/schema"
)

// Channel identifies the messaging surface a turn arrived from.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelAPI      Channel = "api"
)

// UserContext carries per-user metadata that is immutable for one turn.
type UserContext struct {
	UserID        string            `json:"user_id"`
	DisplayName   string            `json:"display_name,omitempty"`
	Language      string            `json:"language,omitempty"`
	Authenticated bool              `json:"authenticated"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// ConversationState is owned exclusively by one orchestration run. It is
// created (or restored from a checkpoint) at turn start, mutated through the
// cycle, and checkpointed as a whole at turn end. Messages are append-only in
// conversation order; Documents are replaced wholesale on each grading pass.
type ConversationState struct {
	ThreadID         string            `json:"thread_id"`
	Messages         []*schema.Message `json:"messages"`
	CurrentQuestion  string            `json:"current_question"`
	OriginalQuestion string            `json:"original_question"`
	Documents        []string          `json:"documents"`
	RewriteCount     int               `json:"rewrite_count"`
	Channel          Channel           `json:"channel"`
	UserContext      UserContext       `json:"user_context"`

	// ToolCallIDSeq synthesizes tool_call ids when the provider omits them.
	ToolCallIDSeq int `json:"tool_call_id_seq"`
}

// NewConversationState returns an empty state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{ThreadID: threadID}
}

// AppendMessage appends a message in conversation order. Messages are never
// truncated or replaced within a turn.
func (s *ConversationState) AppendMessage(msg *schema.Message) {
	if msg == nil {
		return
	}
	s.Messages = append(s.Messages, msg)
}

// LastAssistantContent returns the content of the most recent assistant
// message, or empty when none exists.
func (s *ConversationState) LastAssistantContent() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg != nil && msg.Role == schema.Assistant && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// RecentMessages returns up to maxTurns trailing messages without mutating
// the underlying slice.
func (s *ConversationState) RecentMessages(maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(s.Messages) <= maxTurns {
		out := make([]*schema.Message, len(s.Messages))
		copy(out, s.Messages)
		return out
	}
	source := s.Messages[len(s.Messages)-maxTurns:]
	out := make([]*schema.Message, len(source))
	copy(out, source)
	return out
}

// TurnInput is the inbound boundary record delivered by a channel adapter.
type TurnInput struct {
	ThreadID    string      `json:"thread_id"`
	Text        string      `json:"text"`
	Channel     Channel     `json:"channel"`
	UserContext UserContext `json:"user_context"`
}

// TurnResult is the outbound boundary record handed back to the adapter.
type TurnResult struct {
	ThreadID     string `json:"thread_id"`
	Text         string `json:"text"`
	RequiresAuth bool   `json:"requires_auth"`
}

// AuthSentinel marks a response that requires authentication. The adapter
// layer strips it and renders a platform-appropriate auth prompt; the core
// never performs authentication itself.
const AuthSentinel = "[[AUTH_REQUIRED]]"
