package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/model"
	logx "github.com/ragrelay/server/pkg/logger"
)

// Rewriter reformulates a question that failed to retrieve anything relevant,
// bounded by a maximum attempt count. Each rewrite re-anchors to the original
// question plus conversation context, never to the latest rewritten question,
// so repeated cycles cannot drift away from user intent.
type Rewriter struct {
	chat            model.ChatModel
	maxRewrites     int
	maxContextTurns int
	timeout         time.Duration
}

// RewriteOutcome reports what the rewrite step did with the state.
type RewriteOutcome struct {
	// Question is the reformulated question when the budget allowed a rewrite.
	Question string
	// Exhausted is true when the budget was already spent; the state now
	// carries the terminal no-answer message and the counter is reset.
	Exhausted bool
}

func NewRewriter(chat model.ChatModel, maxRewrites, maxContextTurns int, timeout time.Duration) *Rewriter {
	if maxRewrites < 0 {
		maxRewrites = 0
	}
	if timeout <= 0 {
		timeout = defaultGradeTimeout
	}
	return &Rewriter{
		chat:            chat,
		maxRewrites:     maxRewrites,
		maxContextTurns: maxContextTurns,
		timeout:         timeout,
	}
}

// Rewrite either reformulates the current question or, when the budget is
// exhausted, appends the terminal no-answer message and resets the counter so
// the next user turn starts fresh.
func (r *Rewriter) Rewrite(ctx context.Context, state *model.ConversationState) (RewriteOutcome, error) {
	if state.RewriteCount >= r.maxRewrites {
		logx.Debug().
			Str("thread_id", state.ThreadID).
			Int("rewrite_count", state.RewriteCount).
			Msg("Rewrite budget exhausted; ending turn with no-answer message")
		state.AppendMessage(schema.AssistantMessage(NoAnswerMessage, nil))
		state.RewriteCount = 0
		return RewriteOutcome{Exhausted: true}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.chat.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(rewriteSystemPrompt),
		schema.UserMessage(rewriteUserPrompt(state.OriginalQuestion, state.RecentMessages(r.maxContextTurns))),
	})
	if err != nil {
		return RewriteOutcome{}, fmt.Errorf("rewrite question: %w", err)
	}

	question := ""
	if out != nil {
		question = strings.TrimSpace(out.Content)
	}
	if question == "" {
		// A blank rewrite would retry the exact query that just failed.
		question = state.OriginalQuestion
	}

	state.CurrentQuestion = question
	state.RewriteCount++
	state.AppendMessage(schema.SystemMessage(fmt.Sprintf(
		"RETRY %d/%d: the previous retrieval found nothing relevant; searching again with a reformulated query.",
		state.RewriteCount, r.maxRewrites,
	)))

	logx.Debug().
		Str("thread_id", state.ThreadID).
		Int("rewrite_count", state.RewriteCount).
		Str("question", question).
		Msg("Question rewritten")

	return RewriteOutcome{Question: question}, nil
}
