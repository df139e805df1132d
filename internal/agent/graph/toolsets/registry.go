package toolsets

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	logx "github.com/ragrelay/server/pkg/logger"
)

// DefaultKBToolName is the knowledge-base retrieval tool exposed to the model.
const DefaultKBToolName = "search_knowledge_base"

// Config declares the tool surface of one agent.
type Config struct {
	KBToolName    string
	KBDescription string
	Descriptors   []Descriptor
}

// Registry maps tool identifiers to statically-typed handlers, resolved once
// at agent-construction time. The knowledge-base tool has no handler here:
// the router intercepts it and runs the retrieval step instead.
type Registry struct {
	kbInfo *schema.ToolInfo
	tools  map[string]tool.InvokableTool
	infos  []*schema.ToolInfo
}

// NewRegistry resolves the configured tool surface. Malformed descriptors and
// name collisions fail here, at configuration time, not mid-conversation.
// Extra tools are predefined in-process capabilities.
func NewRegistry(ctx context.Context, cfg Config, extra ...tool.InvokableTool) (*Registry, error) {
	kbName := strings.TrimSpace(cfg.KBToolName)
	if kbName == "" {
		kbName = DefaultKBToolName
	}
	kbDesc := cfg.KBDescription
	if kbDesc == "" {
		kbDesc = "Search the knowledge base for passages relevant to a question. Use for any question that may be answered from stored documents."
	}

	r := &Registry{
		kbInfo: &schema.ToolInfo{
			Name: kbName,
			Desc: kbDesc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The question to search the knowledge base with.",
					Required: true,
				},
			}),
		},
		tools: make(map[string]tool.InvokableTool),
	}
	r.infos = append(r.infos, r.kbInfo)

	for _, desc := range cfg.Descriptors {
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		if err := r.add(ctx, newHTTPTool(desc)); err != nil {
			return nil, err
		}
	}
	for _, t := range extra {
		if err := r.add(ctx, t); err != nil {
			return nil, err
		}
	}

	logx.Debug().
		Int("tool_count", len(r.tools)).
		Str("kb_tool", kbName).
		Msg("Tool registry resolved")

	return r, nil
}

func (r *Registry) add(ctx context.Context, t tool.InvokableTool) error {
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("resolve tool info: %w", err)
	}
	if info.Name == r.kbInfo.Name {
		return fmt.Errorf("tool %q collides with the knowledge-base tool name", info.Name)
	}
	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("duplicate tool name %q", info.Name)
	}
	r.tools[info.Name] = t
	r.infos = append(r.infos, info)
	return nil
}

// KBNames returns the knowledge-base tool name set for the router.
func (r *Registry) KBNames() []string {
	return []string{r.kbInfo.Name}
}

// ToolNames returns the generic tool name set for the router.
func (r *Registry) ToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Infos returns every tool description for binding to the chat model.
func (r *Registry) Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Execute runs a resolved generic tool by name.
func (r *Registry) Execute(ctx context.Context, name, argumentsInJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.InvokableRun(ctx, argumentsInJSON)
}
