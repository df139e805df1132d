package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestLastAssistantContent(t *testing.T) {
	s := NewConversationState("th-1")
	if got := s.LastAssistantContent(); got != "" {
		t.Errorf("empty state = %q, want empty", got)
	}

	s.AppendMessage(schema.UserMessage("q1"))
	s.AppendMessage(schema.AssistantMessage("a1", nil))
	s.AppendMessage(schema.UserMessage("q2"))
	// Tool-calling assistant messages carry no content and must be skipped.
	s.AppendMessage(schema.AssistantMessage("", []schema.ToolCall{{ID: "c1"}}))

	if got := s.LastAssistantContent(); got != "a1" {
		t.Errorf("LastAssistantContent = %q, want a1", got)
	}

	s.AppendMessage(schema.AssistantMessage("a2", nil))
	if got := s.LastAssistantContent(); got != "a2" {
		t.Errorf("LastAssistantContent = %q, want a2", got)
	}
}

func TestAppendMessageIgnoresNil(t *testing.T) {
	s := NewConversationState("th-1")
	s.AppendMessage(nil)
	if len(s.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(s.Messages))
	}
}

func TestRecentMessages(t *testing.T) {
	s := NewConversationState("th-1")
	for _, text := range []string{"m1", "m2", "m3", "m4"} {
		s.AppendMessage(schema.UserMessage(text))
	}

	recent := s.RecentMessages(2)
	if len(recent) != 2 || recent[0].Content != "m3" || recent[1].Content != "m4" {
		t.Errorf("RecentMessages(2) = %v", recent)
	}

	if got := s.RecentMessages(10); len(got) != 4 {
		t.Errorf("RecentMessages(10) = %d messages, want all 4", len(got))
	}
	if got := s.RecentMessages(0); len(got) != 4 {
		t.Errorf("RecentMessages(0) = %d messages, want all 4", len(got))
	}

	// The returned slice is a copy: growing it must not disturb the state.
	recent = append(recent, schema.UserMessage("m5"))
	if len(s.Messages) != 4 {
		t.Errorf("state mutated through RecentMessages result: %d messages", len(s.Messages))
	}
}
