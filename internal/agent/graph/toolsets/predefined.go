package toolsets

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ===================================
// Current Time Tool
// ===================================

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty"`
}

type currentTimeOutput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

// NewCurrentTimeTool returns a predefined in-process capability that reports
// the current time, optionally in a named IANA timezone.
func NewCurrentTimeTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: "get_current_time",
			Desc: "Get the current date and time. Use when the user asks about the time, date, or day of week.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"timezone": {
					Type: "string",
					Desc: "Optional IANA timezone name, e.g. Asia/Bangkok. Defaults to UTC.",
				},
			}),
		},
		func(ctx context.Context, in *currentTimeInput) (*currentTimeOutput, error) {
			loc := time.UTC
			if in.Timezone != "" {
				if parsed, err := time.LoadLocation(in.Timezone); err == nil {
					loc = parsed
				}
			}
			now := time.Now().In(loc)
			return &currentTimeOutput{
				Time:     now.Format(time.RFC1123),
				Timezone: loc.String(),
			}, nil
		},
	)
}
