package nodes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/model"
)

func TestRewriteUpdatesQuestionAndCounter(t *testing.T) {
	chat := &fakeChat{generateFn: func(messages []*schema.Message) (*schema.Message, error) {
		prompt := messages[len(messages)-1].Content
		if !strings.Contains(prompt, "Original question: why does it leak") {
			t.Errorf("rewrite prompt missing original question: %q", prompt)
		}
		return schema.AssistantMessage("washing machine water leak causes", nil), nil
	}}
	r := NewRewriter(chat, 2, 6, time.Second)

	state := model.NewConversationState("th-1")
	state.OriginalQuestion = "why does it leak"
	state.CurrentQuestion = "previous failed query"

	outcome, err := r.Rewrite(context.Background(), state)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if outcome.Exhausted {
		t.Fatal("outcome.Exhausted = true, want false")
	}
	if outcome.Question != "washing machine water leak causes" {
		t.Errorf("outcome.Question = %q", outcome.Question)
	}
	if state.CurrentQuestion != outcome.Question {
		t.Errorf("state.CurrentQuestion = %q", state.CurrentQuestion)
	}
	if state.RewriteCount != 1 {
		t.Errorf("state.RewriteCount = %d, want 1", state.RewriteCount)
	}

	last := state.Messages[len(state.Messages)-1]
	if last.Role != schema.System || !strings.HasPrefix(last.Content, "RETRY 1/2") {
		t.Errorf("missing retry marker, got %+v", last)
	}
}

func TestRewriteBlankOutputFallsBackToOriginal(t *testing.T) {
	chat := &fakeChat{generateFn: func(messages []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("   ", nil), nil
	}}
	r := NewRewriter(chat, 1, 6, time.Second)

	state := model.NewConversationState("th-1")
	state.OriginalQuestion = "why does it leak"
	state.CurrentQuestion = "something else"

	outcome, err := r.Rewrite(context.Background(), state)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if outcome.Question != "why does it leak" {
		t.Errorf("outcome.Question = %q, want the original question", outcome.Question)
	}
	if state.RewriteCount != 1 {
		t.Errorf("state.RewriteCount = %d, want 1", state.RewriteCount)
	}
}

func TestRewriteExhaustedBudget(t *testing.T) {
	chat := &fakeChat{generateFn: func(messages []*schema.Message) (*schema.Message, error) {
		t.Error("no model call expected when the budget is spent")
		return nil, nil
	}}

	// A zero budget is exhausted before the first rewrite.
	r := NewRewriter(chat, 0, 6, time.Second)

	state := model.NewConversationState("th-1")
	state.OriginalQuestion = "q"

	outcome, err := r.Rewrite(context.Background(), state)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !outcome.Exhausted {
		t.Fatal("outcome.Exhausted = false, want true")
	}
	if state.RewriteCount != 0 {
		t.Errorf("state.RewriteCount = %d, want 0 after reset", state.RewriteCount)
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Role != schema.Assistant || last.Content != NoAnswerMessage {
		t.Errorf("terminal message = %+v, want the no-answer message", last)
	}
}

func TestRewriteModelError(t *testing.T) {
	chat := &fakeChat{generateFn: func(messages []*schema.Message) (*schema.Message, error) {
		return nil, errors.New("model unavailable")
	}}
	r := NewRewriter(chat, 2, 6, time.Second)

	state := model.NewConversationState("th-1")
	state.OriginalQuestion = "q"

	if _, err := r.Rewrite(context.Background(), state); err == nil {
		t.Fatal("want error from failed rewrite call")
	}
	if state.RewriteCount != 0 {
		t.Errorf("state.RewriteCount = %d, want unchanged 0", state.RewriteCount)
	}
}
