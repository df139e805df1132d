package nodes

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func toolCallMsg(names ...string) *schema.Message {
	calls := make([]schema.ToolCall, len(names))
	for i, name := range names {
		calls[i] = schema.ToolCall{
			ID:       name + "_id",
			Function: schema.FunctionCall{Name: name},
		}
	}
	return schema.AssistantMessage("", calls)
}

func TestRouterRoute(t *testing.T) {
	r := NewRouter([]string{"search_knowledge_base"}, []string{"order_lookup", "current_time"})

	tests := []struct {
		name     string
		msg      *schema.Message
		want     Route
		wantCall string
	}{
		{name: "nil message", msg: nil, want: RouteEnd},
		{name: "plain reply", msg: schema.AssistantMessage("hello", nil), want: RouteEnd},
		{name: "kb call", msg: toolCallMsg("search_knowledge_base"), want: RouteRetrieve, wantCall: "search_knowledge_base"},
		{name: "generic call", msg: toolCallMsg("order_lookup"), want: RouteTools, wantCall: "order_lookup"},
		{name: "unknown call ends turn", msg: toolCallMsg("made_up_tool"), want: RouteEnd},
		{name: "only first call routed", msg: toolCallMsg("order_lookup", "search_knowledge_base"), want: RouteTools, wantCall: "order_lookup"},
		{name: "first call wins even when second is unknown", msg: toolCallMsg("search_knowledge_base", "made_up_tool"), want: RouteRetrieve, wantCall: "search_knowledge_base"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, call := r.Route(tt.msg)
			if route != tt.want {
				t.Errorf("route = %q, want %q", route, tt.want)
			}
			if tt.wantCall == "" {
				if call != nil {
					t.Errorf("call = %+v, want nil", call)
				}
				return
			}
			if call == nil || call.Function.Name != tt.wantCall {
				t.Errorf("call = %+v, want %q", call, tt.wantCall)
			}
		})
	}
}
