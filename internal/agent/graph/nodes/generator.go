package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/model"
)

// Generator produces the final answer of a turn from the question and the
// passages that survived grading. It is always terminal: nothing cycles after
// generation.
type Generator struct {
	chat    model.ChatModel
	timeout time.Duration
}

func NewGenerator(chat model.ChatModel, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{chat: chat, timeout: timeout}
}

// Generate synthesizes an answer grounded in the supplied passages. With no
// passages left after the rewrite budget was spent it returns the fixed
// no-answer message instead of producing an ungrounded answer.
func (g *Generator) Generate(ctx context.Context, question string, passages []string) (string, error) {
	if len(passages) == 0 {
		return NoAnswerMessage, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.chat.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(answerUserPrompt(question, passages)),
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	answer := ""
	if out != nil {
		answer = strings.TrimSpace(out.Content)
	}
	if answer == "" {
		return "", fmt.Errorf("generate answer: empty model response")
	}
	return answer, nil
}
