package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ChatModel is the narrow chat-completion boundary consumed by the
// orchestrator and its nodes. Concrete implementations wrap an Eino chat
// model; tests provide hand-rolled fakes.
type ChatModel interface {
	Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// Retriever is the knowledge-base search boundary. The concrete vector-store
// and embedding technology live behind it.
type Retriever interface {
	// Search returns up to topK passages ranked by relevance to the question.
	Search(ctx context.Context, question string, topK int) ([]string, error)
}

// HistoryLog records finished-turn messages as an append-only chat history,
// separate from the resumable checkpoint. Appends are best-effort: a failed
// append never fails the turn.
type HistoryLog interface {
	Append(ctx context.Context, threadID string, messages []*schema.Message) error
}

// CheckpointStore persists conversation state between turns keyed by thread
// ID, so an inbound message resumes from the correct point.
type CheckpointStore interface {
	// Load returns the checkpointed state for a thread, or nil when the
	// thread has no checkpoint yet.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save writes the whole state in one operation.
	Save(ctx context.Context, state *ConversationState) error

	// Delete removes the checkpoint for a thread.
	Delete(ctx context.Context, threadID string) error
}
