package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ragrelay/server/internal/agent/graph"
	"github.com/ragrelay/server/internal/agent/graph/nodes"
	"github.com/ragrelay/server/internal/agent/graph/toolsets"
	"github.com/ragrelay/server/internal/agent/model"
	"github.com/ragrelay/server/internal/agent/repo"
	"github.com/ragrelay/server/internal/core"
	"github.com/ragrelay/server/internal/ratelimit"
	"github.com/ragrelay/server/internal/relay"
	"github.com/ragrelay/server/internal/retrieval"
	"github.com/ragrelay/server/internal/voice"
	logx "github.com/ragrelay/server/pkg/logger"
	pkgredis "github.com/ragrelay/server/pkg/redis"
)

// AppConfig defines every configurable parameter of the relay worker,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey         string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL        string `envconfig:"GEMINI_BASE_URL"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`

	// Agent
	Agent        model.AgentConfig
	Chat         model.ChatModelConfig
	Grader       model.GraderModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig

	// Tool surface: a JSON array of external tool descriptors.
	ToolDescriptors string `envconfig:"TOOL_DESCRIPTORS"`

	// Collaborators
	Retrieval retrieval.Config
	RateLimit ratelimit.Config
	Relay     relay.Config

	// Voice: a JSON array of provider entries plus engine tuning.
	VoiceProviders       string `envconfig:"VOICE_PROVIDERS"`
	VoiceStrategy        string `envconfig:"VOICE_STRATEGY" default:"health"`
	VoiceHealthIntervalS int    `envconfig:"VOICE_HEALTH_INTERVAL_SECONDS" default:"60"`
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", cfg.Conversation.TTL).Msg("Invalid CONVERSATION_TTL")
	}
	stepTimeout, err := time.ParseDuration(cfg.Agent.StepTimeout)
	if err != nil {
		logx.Fatal().Err(err).Str("timeout", cfg.Agent.StepTimeout).Msg("Invalid AGENT_STEP_TIMEOUT")
	}
	gradeTimeout, err := time.ParseDuration(cfg.Agent.GradeTimeout)
	if err != nil {
		logx.Fatal().Err(err).Str("timeout", cfg.Agent.GradeTimeout).Msg("Invalid AGENT_GRADE_TIMEOUT")
	}

	// Tool surface is resolved once, here; a malformed descriptor stops the
	// process before any conversation is accepted.
	descriptors, err := toolsets.DescriptorsFromJSON(cfg.ToolDescriptors)
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid tool descriptors")
	}
	registry, err := toolsets.NewRegistry(ctx, toolsets.Config{Descriptors: descriptors}, toolsets.NewCurrentTimeTool())
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to resolve tool registry")
	}

	client, err := nodes.NewGenaiClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	chatModels, err := nodes.NewChatModels(ctx, client, cfg.Chat, cfg.Grader, registry.Infos())
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}

	embedder, err := retrieval.NewGeminiEmbedder(client, cfg.EmbeddingModel)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create embedder")
	}
	retriever, err := retrieval.New(cfg.Retrieval, embedder)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create retriever")
	}
	defer retriever.Close()

	machine, err := graph.NewMachine(graph.Deps{
		Chat:        chatModels.Agent,
		Helper:      chatModels.Helper,
		Retriever:   retriever,
		Checkpoints: repo.NewRedisCheckpointStore(rdb, ttl),
		History:     repo.NewRedisHistoryLog(rdb, ttl),
		Registry:    registry,
		Prompt:      cfg.Prompt,
		Config: graph.Config{
			MaxRewrites:     cfg.Agent.MaxRewrites,
			TopK:            cfg.Agent.TopK,
			MaxContextTurns: cfg.Conversation.MaxContextTurns,
			StepTimeout:     stepTimeout,
			GradeTimeout:    gradeTimeout,
		},
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build conversation machine")
	}

	window, err := time.ParseDuration(cfg.RateLimit.Window)
	if err != nil {
		logx.Fatal().Err(err).Str("window", cfg.RateLimit.Window).Msg("Invalid RATE_LIMIT_WINDOW")
	}
	limiter := ratelimit.New(
		ratelimit.NewRedisStore(rdb),
		cfg.RateLimit.MaxRequests,
		window,
		ratelimit.ParseMode(cfg.RateLimit.Mode),
	)

	voiceEngine := buildVoiceEngine(ctx, cfg)

	worker := relay.NewWorker(rdb, machine, limiter, voiceEngine, cfg.Relay)
	if err := worker.EnsureGroup(ctx); err != nil {
		logx.Fatal().Err(err).Msg("Failed to create relay consumer group")
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logx.Info().Msg("Shutting down")
		cancel()
	}()

	worker.Run(ctx)
}

// buildVoiceEngine assembles the voice decision engine when providers are
// configured; without providers the relay simply skips voice hints.
func buildVoiceEngine(ctx context.Context, cfg AppConfig) *voice.Engine {
	providers, err := voice.ProvidersFromJSON(cfg.VoiceProviders)
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid voice provider configuration")
	}
	if len(providers) == 0 {
		logx.Info().Msg("No voice providers configured; voice hints disabled")
		return nil
	}

	registry, err := voice.NewRegistry(providers...)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build voice provider registry")
	}

	engine, err := voice.NewEngine(voice.EngineConfig{Strategy: cfg.VoiceStrategy}, registry)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build voice decision engine")
	}

	checker := voice.NewHealthChecker(registry, &voice.HTTPPinger{},
		time.Duration(cfg.VoiceHealthIntervalS)*time.Second, 5*time.Second)
	go checker.Run(ctx)

	return engine
}
