package nodes

import (
	"github.com/cloudwego/eino/schema"

	logx "github.com/ragrelay/server/pkg/logger"
)

// Route is the tool-routing decision for one model output.
type Route string

const (
	// RouteEnd terminates the turn; the model replied without a tool call.
	RouteEnd Route = "end"
	// RouteRetrieve runs the knowledge-base retrieval step.
	RouteRetrieve Route = "retrieve"
	// RouteTools executes a generic configured tool.
	RouteTools Route = "tools"
)

// Router classifies a model output by membership of its first tool-call name
// in the two configured name sets. Only the first tool call of a turn is
// inspected; parallel tool calls are a documented limitation of this cycle,
// not something to route around.
type Router struct {
	kbNames   map[string]struct{}
	toolNames map[string]struct{}
}

func NewRouter(kbNames, toolNames []string) *Router {
	r := &Router{
		kbNames:   make(map[string]struct{}, len(kbNames)),
		toolNames: make(map[string]struct{}, len(toolNames)),
	}
	for _, name := range kbNames {
		r.kbNames[name] = struct{}{}
	}
	for _, name := range toolNames {
		r.toolNames[name] = struct{}{}
	}
	return r
}

// Route returns the routing decision and, for tool routes, the first tool
// call. A tool name in neither configured set is an error condition: it is
// logged and routed to end-of-turn, never silently dropped.
func (r *Router) Route(msg *schema.Message) (Route, *schema.ToolCall) {
	if msg == nil || len(msg.ToolCalls) == 0 {
		return RouteEnd, nil
	}

	call := msg.ToolCalls[0]
	if len(msg.ToolCalls) > 1 {
		logx.Debug().
			Int("tool_count", len(msg.ToolCalls)).
			Str("routed", call.Function.Name).
			Msg("Multiple tool calls in one model turn; only the first is routed")
	}

	name := call.Function.Name
	if _, ok := r.kbNames[name]; ok {
		return RouteRetrieve, &call
	}
	if _, ok := r.toolNames[name]; ok {
		return RouteTools, &call
	}

	logx.Warn().
		Str("tool_name", name).
		Msg("Tool call matches no configured tool set; ending turn")
	return RouteEnd, nil
}
