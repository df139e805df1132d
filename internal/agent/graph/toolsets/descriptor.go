package toolsets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	logx "github.com/ragrelay/server/pkg/logger"
)

const defaultToolTimeout = 20 * time.Second

// Parameter describes one input of a declarative external tool.
type Parameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	// In is "query" or "body"; it controls how the argument reaches the wire.
	In string `json:"in"`
}

// Descriptor declares an external HTTP tool. Descriptors are resolved to
// callables once at registry construction, never at call time.
type Descriptor struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	URL            string               `json:"url"`
	Method         string               `json:"method"`
	Headers        map[string]string    `json:"headers,omitempty"`
	Parameters     map[string]Parameter `json:"parameters,omitempty"`
	TimeoutSeconds int                  `json:"timeout_seconds,omitempty"`
}

// Validate surfaces malformed descriptors at configuration-load time, before
// the orchestrator is usable.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tool descriptor: name is required")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("tool descriptor %q: url is required", d.Name)
	}
	if _, err := url.Parse(d.URL); err != nil {
		return fmt.Errorf("tool descriptor %q: invalid url: %w", d.Name, err)
	}
	switch strings.ToUpper(d.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	case "":
		return fmt.Errorf("tool descriptor %q: method is required", d.Name)
	default:
		return fmt.Errorf("tool descriptor %q: unsupported method %q", d.Name, d.Method)
	}
	for name, p := range d.Parameters {
		switch p.In {
		case "", "query", "body":
		default:
			return fmt.Errorf("tool descriptor %q: parameter %q: unsupported location %q", d.Name, name, p.In)
		}
	}
	return nil
}

// DescriptorsFromJSON parses a JSON array of descriptors, validating each.
func DescriptorsFromJSON(raw string) ([]Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var descriptors []Descriptor
	if err := json.Unmarshal([]byte(raw), &descriptors); err != nil {
		return nil, fmt.Errorf("parse tool descriptors: %w", err)
	}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return descriptors, nil
}

// httpTool executes a descriptor-declared HTTP call. The orchestrator only
// supplies JSON arguments and consumes a string result or an error.
type httpTool struct {
	desc   Descriptor
	client *http.Client
}

func newHTTPTool(desc Descriptor) *httpTool {
	timeout := defaultToolTimeout
	if desc.TimeoutSeconds > 0 {
		timeout = time.Duration(desc.TimeoutSeconds) * time.Second
	}
	return &httpTool{
		desc:   desc,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *httpTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := make(map[string]*schema.ParameterInfo, len(t.desc.Parameters))
	for name, p := range t.desc.Parameters {
		paramType := p.Type
		if paramType == "" {
			paramType = "string"
		}
		params[name] = &schema.ParameterInfo{
			Type:     schema.DataType(paramType),
			Desc:     p.Description,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        t.desc.Name,
		Desc:        t.desc.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *httpTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("tool %q: invalid arguments: %w", t.desc.Name, err)
		}
	}

	for name, p := range t.desc.Parameters {
		if p.Required {
			if _, ok := args[name]; !ok {
				return "", fmt.Errorf("tool %q: missing required argument %q", t.desc.Name, name)
			}
		}
	}

	req, err := t.buildRequest(ctx, args)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tool %q: request failed: %w", t.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tool %q: read response: %w", t.desc.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tool %q: status %d: %s", t.desc.Name, resp.StatusCode, truncate(string(body), 200))
	}

	return string(body), nil
}

func (t *httpTool) buildRequest(ctx context.Context, args map[string]any) (*http.Request, error) {
	method := strings.ToUpper(t.desc.Method)

	query := url.Values{}
	body := map[string]any{}
	for name, value := range args {
		p := t.desc.Parameters[name]
		in := p.In
		if in == "" {
			if method == http.MethodGet {
				in = "query"
			} else {
				in = "body"
			}
		}
		if in == "query" {
			query.Set(name, fmt.Sprint(value))
		} else {
			body[name] = value
		}
	}

	target := t.desc.URL
	if encoded := query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target = target + sep + encoded
	}

	var reader io.Reader
	if len(body) > 0 {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("tool %q: marshal body: %w", t.desc.Name, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("tool %q: build request: %w", t.desc.Name, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.desc.Headers {
		req.Header.Set(k, v)
	}

	logx.Debug().Str("tool", t.desc.Name).Str("method", method).Msg("Executing external tool call")
	return req, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ tool.InvokableTool = (*httpTool)(nil)
