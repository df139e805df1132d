package toolsets

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// namedTool is a minimal in-process tool for registry tests.
type namedTool struct {
	name string
}

func (n *namedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        n.name,
		Desc:        "test tool",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (n *namedTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return `{"from":"` + n.name + `"}`, nil
}

func TestNewRegistryDefaultsKBTool(t *testing.T) {
	r, err := NewRegistry(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	kb := r.KBNames()
	if len(kb) != 1 || kb[0] != DefaultKBToolName {
		t.Errorf("KBNames = %v", kb)
	}
	if len(r.ToolNames()) != 0 {
		t.Errorf("ToolNames = %v, want empty", r.ToolNames())
	}
	if len(r.Infos()) != 1 {
		t.Errorf("Infos = %d entries, want only the knowledge-base tool", len(r.Infos()))
	}
}

func TestNewRegistryRejectsKBNameCollision(t *testing.T) {
	_, err := NewRegistry(context.Background(), Config{}, &namedTool{name: DefaultKBToolName})
	if err == nil {
		t.Fatal("want error for knowledge-base name collision")
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(context.Background(), Config{},
		&namedTool{name: "dup"}, &namedTool{name: "dup"})
	if err == nil {
		t.Fatal("want error for duplicate tool names")
	}
}

func TestNewRegistryRejectsInvalidDescriptor(t *testing.T) {
	_, err := NewRegistry(context.Background(), Config{
		Descriptors: []Descriptor{{Name: "broken"}},
	})
	if err == nil {
		t.Fatal("want error for invalid descriptor")
	}
}

func TestRegistryExecute(t *testing.T) {
	r, err := NewRegistry(context.Background(), Config{}, &namedTool{name: "echo"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", `{}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != `{"from":"echo"}` {
		t.Errorf("Execute = %q", out)
	}

	if _, err := r.Execute(context.Background(), "missing", `{}`); err == nil {
		t.Error("want error for unknown tool")
	}
}

func TestCurrentTimeTool(t *testing.T) {
	ct := NewCurrentTimeTool()
	info, err := ct.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name == "" {
		t.Error("tool has no name")
	}

	out, err := ct.InvokableRun(context.Background(), `{"timezone":"UTC"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out == "" {
		t.Error("empty result")
	}
}
