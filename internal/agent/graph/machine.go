package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ragrelay/server/internal/agent/graph/nodes"
	"github.com/ragrelay/server/internal/agent/graph/toolsets"
	"github.com/ragrelay/server/internal/agent/model"
	logx "github.com/ragrelay/server/pkg/logger"
)

// Phase is the tagged state of the conversation cycle.
type Phase string

const (
	// PhaseAgent calls the chat model with the conversation so far.
	PhaseAgent Phase = "agent"
	// PhaseTools executes a generic configured tool and returns to the model.
	PhaseTools Phase = "tools"
	// PhaseRetrieve searches the knowledge base with the current question.
	PhaseRetrieve Phase = "retrieve"
	// PhaseGrade filters retrieved passages down to the relevant subset.
	PhaseGrade Phase = "grade"
	// PhaseRewrite reformulates the question after an empty grading pass.
	PhaseRewrite Phase = "rewrite"
	// PhaseGenerate produces the final answer; always terminal.
	PhaseGenerate Phase = "generate"
	// PhaseEnd is the terminal state of a turn.
	PhaseEnd Phase = "end"
)

// Config bounds and tunes one machine.
type Config struct {
	MaxRewrites     int
	TopK            int
	MaxContextTurns int
	StepTimeout     time.Duration
	GradeTimeout    time.Duration
}

// Deps are the collaborators a machine is constructed with. Everything is
// injected explicitly; the machine owns no ambient state.
type Deps struct {
	Chat        model.ChatModel
	Helper      model.ChatModel
	Retriever   model.Retriever
	Checkpoints model.CheckpointStore
	// History receives the messages of each finished turn. Optional; when
	// nil no history is kept beyond the checkpoint.
	History  model.HistoryLog
	Registry *toolsets.Registry
	Prompt   model.PromptConfig
	Config   Config
}

// Machine drives one conversation turn through the cycle
//
//	AGENT -> {TOOLS, RETRIEVE, END}
//	RETRIEVE -> GRADE -> {REWRITE, GENERATE}
//	REWRITE -> AGENT, GENERATE -> END, TOOLS -> AGENT
//
// The rewrite sub-cycle is bounded by MaxRewrites, so a turn that never
// retrieves anything relevant performs exactly MaxRewrites+1 retrieval
// attempts before terminating. A step ceiling additionally bounds generic
// tool loops.
type Machine struct {
	chat        model.ChatModel
	grader      *nodes.Grader
	rewriter    *nodes.Rewriter
	generator   *nodes.Generator
	router      *nodes.Router
	registry    *toolsets.Registry
	retriever   model.Retriever
	checkpoints model.CheckpointStore
	history     model.HistoryLog
	cfg         Config
	sysPrompt   string

	// locks serializes turns per thread: a second inbound message for a
	// thread waits until the prior turn reaches a terminal state.
	locks sync.Map
}

// NewMachine validates dependencies and resolves the cycle configuration.
// Missing collaborators fail here, before any conversation is accepted.
func NewMachine(deps Deps) (*Machine, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("machine: chat model is nil")
	}
	if deps.Helper == nil {
		return nil, fmt.Errorf("machine: helper model is nil")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("machine: retriever is nil")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("machine: checkpoint store is nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("machine: tool registry is nil")
	}

	cfg := deps.Config
	if cfg.MaxRewrites < 0 {
		cfg.MaxRewrites = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = 6
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.GradeTimeout <= 0 {
		cfg.GradeTimeout = 15 * time.Second
	}

	return &Machine{
		chat:        deps.Chat,
		grader:      nodes.NewGrader(deps.Helper, cfg.GradeTimeout),
		rewriter:    nodes.NewRewriter(deps.Helper, cfg.MaxRewrites, cfg.MaxContextTurns, cfg.StepTimeout),
		generator:   nodes.NewGenerator(deps.Helper, cfg.StepTimeout),
		router:      nodes.NewRouter(deps.Registry.KBNames(), deps.Registry.ToolNames()),
		registry:    deps.Registry,
		retriever:   deps.Retriever,
		checkpoints: deps.Checkpoints,
		history:     deps.History,
		cfg:         cfg,
		sysPrompt:   nodes.AgentSystemPrompt(deps.Prompt),
	}, nil
}

// turnRun carries per-turn scratch state that never outlives a turn.
type turnRun struct {
	state *model.ConversationState
	// pendingKBCall is the knowledge-base tool call awaiting its tool-result
	// message, appended once grading completes.
	pendingKBCall *schema.ToolCall
}

// Run processes one user turn to its terminal state and checkpoints the
// resulting conversation state. Node failures never escape: they are logged,
// converted to a user-visible error message, and force the END transition.
func (m *Machine) Run(ctx context.Context, in model.TurnInput) (model.TurnResult, error) {
	if strings.TrimSpace(in.ThreadID) == "" {
		return model.TurnResult{}, fmt.Errorf("turn input: thread id is required")
	}

	lock := m.threadLock(in.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	state := m.loadState(ctx, in.ThreadID)
	state.Channel = in.Channel
	state.UserContext = in.UserContext
	state.OriginalQuestion = in.Text
	state.CurrentQuestion = in.Text
	state.RewriteCount = 0
	state.Documents = nil
	turnStart := len(state.Messages)
	state.AppendMessage(schema.UserMessage(in.Text))

	run := &turnRun{state: state}

	phase := PhaseAgent
	steps := 0
	maxSteps := m.maxSteps()
	for phase != PhaseEnd {
		if err := ctx.Err(); err != nil {
			// Cancelled between suspension points: discard the turn rather
			// than checkpoint a half-finished state.
			return model.TurnResult{}, fmt.Errorf("turn cancelled: %w", err)
		}

		steps++
		if steps > maxSteps {
			logx.Warn().
				Str("thread_id", state.ThreadID).
				Int("steps", steps).
				Msg("Step ceiling reached; forcing turn to end")
			state.AppendMessage(schema.AssistantMessage(nodes.TurnErrorMessage, nil))
			break
		}

		next, err := m.step(ctx, phase, run)
		if err != nil {
			logx.Error().
				Err(err).
				Str("thread_id", state.ThreadID).
				Str("phase", string(phase)).
				Msg("Node failed; ending turn with error message")
			state.AppendMessage(schema.AssistantMessage(nodes.TurnErrorMessage, nil))
			break
		}
		phase = next
	}

	if err := m.checkpoints.Save(ctx, state); err != nil {
		logx.Error().Err(err).Str("thread_id", state.ThreadID).Msg("Failed to checkpoint conversation state")
	}
	if m.history != nil {
		if err := m.history.Append(ctx, state.ThreadID, state.Messages[turnStart:]); err != nil {
			logx.Error().Err(err).Str("thread_id", state.ThreadID).Msg("Failed to append turn to chat history")
		}
	}

	text := state.LastAssistantContent()
	if text == "" {
		text = nodes.TurnErrorMessage
	}

	result := model.TurnResult{ThreadID: state.ThreadID, Text: text}
	if strings.Contains(text, model.AuthSentinel) {
		result.RequiresAuth = true
		result.Text = strings.TrimSpace(strings.ReplaceAll(text, model.AuthSentinel, ""))
	}
	return result, nil
}

// step dispatches one phase with a panic boundary so no node can crash the
// process.
func (m *Machine) step(ctx context.Context, phase Phase, run *turnRun) (next Phase, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = PhaseEnd
			err = fmt.Errorf("panic in %s node: %v", phase, r)
		}
	}()

	switch phase {
	case PhaseAgent:
		return m.stepAgent(ctx, run)
	case PhaseTools:
		return m.stepTools(ctx, run)
	case PhaseRetrieve:
		return m.stepRetrieve(ctx, run)
	case PhaseGrade:
		return m.stepGrade(ctx, run)
	case PhaseRewrite:
		return m.stepRewrite(ctx, run)
	case PhaseGenerate:
		return m.stepGenerate(ctx, run)
	default:
		return PhaseEnd, fmt.Errorf("unknown phase %q", phase)
	}
}

func (m *Machine) stepAgent(ctx context.Context, run *turnRun) (Phase, error) {
	state := run.state

	messages := make([]*schema.Message, 0, len(state.Messages)+1)
	messages = append(messages, schema.SystemMessage(m.sysPrompt))
	messages = append(messages, state.Messages...)

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	defer cancel()

	out, err := m.chat.Generate(callCtx, messages)
	if err != nil {
		return PhaseEnd, fmt.Errorf("agent model call: %w", err)
	}
	if out == nil {
		return PhaseEnd, fmt.Errorf("agent model call: nil response")
	}

	// Some providers omit tool_call ids; synthesize them so tool-result
	// messages can reference their call.
	for i := range out.ToolCalls {
		if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		}
	}
	state.AppendMessage(out)

	route, call := m.router.Route(out)
	switch route {
	case nodes.RouteRetrieve:
		run.pendingKBCall = call
		return PhaseRetrieve, nil
	case nodes.RouteTools:
		run.pendingKBCall = nil
		return PhaseTools, nil
	default:
		return PhaseEnd, nil
	}
}

func (m *Machine) stepTools(ctx context.Context, run *turnRun) (Phase, error) {
	state := run.state

	last := state.Messages[len(state.Messages)-1]
	if last == nil || len(last.ToolCalls) == 0 {
		return PhaseEnd, fmt.Errorf("tools node: no tool call on last message")
	}
	call := last.ToolCalls[0]

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	defer cancel()

	result, err := m.registry.Execute(callCtx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		// Tool failures are recoverable-external: the error becomes the
		// tool's result so the model can react in its next turn.
		logx.Warn().
			Err(err).
			Str("tool", call.Function.Name).
			Str("thread_id", state.ThreadID).
			Msg("Tool execution failed; feeding error back to the model")
		result = fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	state.AppendMessage(schema.ToolMessage(result, call.ID))
	return PhaseAgent, nil
}

func (m *Machine) stepRetrieve(ctx context.Context, run *turnRun) (Phase, error) {
	state := run.state

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	defer cancel()

	passages, err := m.retriever.Search(callCtx, state.CurrentQuestion, m.cfg.TopK)
	if err != nil {
		return PhaseEnd, fmt.Errorf("retrieval: %w", err)
	}

	state.Documents = passages
	logx.Debug().
		Str("thread_id", state.ThreadID).
		Int("passages", len(passages)).
		Msg("Retrieval complete")
	return PhaseGrade, nil
}

func (m *Machine) stepGrade(ctx context.Context, run *turnRun) (Phase, error) {
	state := run.state

	relevant := m.grader.FilterRelevant(ctx, state.CurrentQuestion, state.Documents)
	state.Documents = relevant

	// Close out the knowledge-base tool call so the conversation log stays
	// coherent for the next model call.
	if run.pendingKBCall != nil {
		state.AppendMessage(schema.ToolMessage(kbToolResult(relevant), run.pendingKBCall.ID))
		run.pendingKBCall = nil
	}

	if len(relevant) == 0 && state.RewriteCount < m.cfg.MaxRewrites {
		return PhaseRewrite, nil
	}
	return PhaseGenerate, nil
}

func (m *Machine) stepRewrite(ctx context.Context, run *turnRun) (Phase, error) {
	outcome, err := m.rewriter.Rewrite(ctx, run.state)
	if err != nil {
		return PhaseEnd, fmt.Errorf("rewrite: %w", err)
	}
	if outcome.Exhausted {
		return PhaseEnd, nil
	}
	return PhaseAgent, nil
}

func (m *Machine) stepGenerate(ctx context.Context, run *turnRun) (Phase, error) {
	state := run.state

	answer, err := m.generator.Generate(ctx, state.CurrentQuestion, state.Documents)
	if err != nil {
		return PhaseEnd, fmt.Errorf("generate: %w", err)
	}
	if answer == nodes.NoAnswerMessage {
		// Budget exhausted with nothing relevant: next user turn starts fresh.
		state.RewriteCount = 0
	}
	state.AppendMessage(schema.AssistantMessage(answer, nil))
	return PhaseEnd, nil
}

func (m *Machine) loadState(ctx context.Context, threadID string) *model.ConversationState {
	state, err := m.checkpoints.Load(ctx, threadID)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID).Msg("Failed to load checkpoint; starting with fresh state")
		return model.NewConversationState(threadID)
	}
	if state == nil {
		return model.NewConversationState(threadID)
	}
	return state
}

func (m *Machine) threadLock(threadID string) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(threadID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// maxSteps bounds the whole cycle, including generic tool loops the rewrite
// budget does not cover.
func (m *Machine) maxSteps() int {
	steps := 8 + 4*(m.cfg.MaxRewrites+1)
	if steps < 20 {
		steps = 20
	}
	return steps
}

func kbToolResult(relevant []string) string {
	payload := map[string]any{
		"relevant_passages": relevant,
		"count":             len(relevant),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return `{"relevant_passages":[],"count":0}`
	}
	return string(b)
}
