package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/model"
)

// NoAnswerMessage is the fixed terminal response when every retrieval attempt
// within the rewrite budget came back with nothing relevant.
const NoAnswerMessage = "I could not find an answer to your question. Please try rephrasing it."

// TurnErrorMessage is the generic user-visible response when a node fails in a
// way the cycle cannot recover from.
const TurnErrorMessage = "Sorry, something went wrong while handling your message. Please try again."

const graderSystemPrompt = `You are a strict relevance grader. Given a user question and a retrieved passage, answer with a single word: "yes" if the passage contains information useful for answering the question, "no" otherwise. Answer nothing else.`

const rewriteSystemPrompt = `You reformulate search queries. The previous query retrieved no relevant passages from the knowledge base. Produce one improved search query that stays faithful to the user's original intent. Reply with the query only, no explanation.`

const answerSystemPrompt = `You answer user questions using only the supplied passages. Ground every claim in the passages. If the passages do not contain the information needed, say so explicitly instead of inventing facts.`

// AgentSystemPrompt renders the system prompt for the model-call step.
func AgentSystemPrompt(cfg model.PromptConfig) string {
	var b strings.Builder
	b.WriteString("You are " + cfg.AssistantName + ", a " + cfg.Domain + " assistant.\n")
	b.WriteString("Use the search_knowledge_base tool whenever a question may be answered from the knowledge base. ")
	b.WriteString("Use other tools when they clearly apply. ")
	b.WriteString("When no tool is needed, reply to the user directly.")
	return b.String()
}

func graderUserPrompt(question, passage string) string {
	return fmt.Sprintf("Question:\n%s\n\nPassage:\n%s", question, passage)
}

func rewriteUserPrompt(originalQuestion string, context []*schema.Message) string {
	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range context {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>\n\n")
	b.WriteString("Original question: " + originalQuestion)
	return b.String()
}

func answerUserPrompt(question string, passages []string) string {
	var b strings.Builder
	b.WriteString("<passages>\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
	}
	b.WriteString("</passages>\n\n")
	b.WriteString("Question: " + question)
	return b.String()
}
