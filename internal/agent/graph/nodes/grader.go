package nodes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/model"
	logx "github.com/ragrelay/server/pkg/logger"
)

const defaultGradeTimeout = 15 * time.Second

// Grader classifies retrieved passages as relevant or not to a question.
// Each passage is graded by an independent classification call; one batch is
// graded concurrently with join-all semantics. A failed or malformed
// classification marks that passage not-relevant (fail-closed) and never
// aborts the rest of the batch.
type Grader struct {
	chat    model.ChatModel
	timeout time.Duration
}

func NewGrader(chat model.ChatModel, timeout time.Duration) *Grader {
	if timeout <= 0 {
		timeout = defaultGradeTimeout
	}
	return &Grader{chat: chat, timeout: timeout}
}

// FilterRelevant returns the subset of passages judged relevant to the
// question, preserving original order.
func (g *Grader) FilterRelevant(ctx context.Context, question string, passages []string) []string {
	if len(passages) == 0 {
		return nil
	}

	verdicts := make([]bool, len(passages))
	var wg sync.WaitGroup
	for i, passage := range passages {
		wg.Add(1)
		go func(i int, passage string) {
			defer wg.Done()
			verdicts[i] = g.gradeOne(ctx, question, passage, i)
		}(i, passage)
	}
	wg.Wait()

	relevant := make([]string, 0, len(passages))
	for i, passage := range passages {
		if verdicts[i] {
			relevant = append(relevant, passage)
		}
	}

	logx.Debug().
		Int("graded", len(passages)).
		Int("relevant", len(relevant)).
		Msg("Passage grading complete")

	return relevant
}

// gradeOne never lets a single classification failure escape; it maps any
// error, timeout, panic, or unparseable output to not-relevant.
func (g *Grader) gradeOne(ctx context.Context, question, passage string, index int) (relevant bool) {
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Int("passage_index", index).Msgf("Grader panic recovered: %v", r)
			relevant = false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.chat.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage(graderUserPrompt(question, passage)),
	})
	if err != nil {
		logx.Warn().Err(err).Int("passage_index", index).Msg("Grading call failed; treating passage as not relevant")
		return false
	}
	if out == nil {
		logx.Warn().Int("passage_index", index).Msg("Grading call returned nil message; treating passage as not relevant")
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(out.Content))
	return strings.HasPrefix(answer, "yes")
}
