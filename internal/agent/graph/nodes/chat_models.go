package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/ragrelay/server/internal/agent/model"
	logx "github.com/ragrelay/server/pkg/logger"
)

// ChatModels holds the tool-calling agent model and the lightweight model
// shared by the grader, rewriter, and generator steps.
type ChatModels struct {
	Agent  model.ChatModel
	Helper model.ChatModel
}

// NewGenaiClient creates the Gemini API client shared by chat models and the
// embedding service.
func NewGenaiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates both chat models and binds the configured tools to
// the agent model.
func NewChatModels(ctx context.Context, client *genai.Client, chatCfg model.ChatModelConfig, graderCfg model.GraderModelConfig, tools []*schema.ToolInfo) (*ChatModels, error) {
	agentModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       chatCfg.Model,
		Temperature: &chatCfg.Temperature,
		MaxTokens:   &chatCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent chat model")
		return nil, fmt.Errorf("error creating agent chat model: %w", err)
	}

	if len(tools) > 0 {
		if err := agentModel.BindTools(tools); err != nil {
			logx.Error().Err(err).Msg("Failed to bind tools to agent model")
			return nil, fmt.Errorf("failed to bind tools to agent model: %w", err)
		}
	}

	helperModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       graderCfg.Model,
		Temperature: &graderCfg.Temperature,
		MaxTokens:   &graderCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating helper chat model")
		return nil, fmt.Errorf("error creating helper chat model: %w", err)
	}

	return &ChatModels{
		Agent:  &einoChatModel{inner: agentModel},
		Helper: &einoChatModel{inner: helperModel},
	}, nil
}

// einoChatModel adapts an Eino chat model to the narrow model.ChatModel
// boundary the orchestrator consumes.
type einoChatModel struct {
	inner einomodel.BaseChatModel
}

func (m *einoChatModel) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	return m.inner.Generate(ctx, messages)
}

var _ model.ChatModel = (*einoChatModel)(nil)
