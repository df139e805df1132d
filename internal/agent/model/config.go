package model

// ================ Config ================

type ConversationConfig struct {
	TTL             string `envconfig:"CONVERSATION_TTL" default:"15m"`
	MaxContextTurns int    `envconfig:"CONVERSATION_MAX_CONTEXT_TURNS" default:"6"`
}

type AgentConfig struct {
	MaxRewrites  int    `envconfig:"AGENT_MAX_REWRITES" default:"2"`
	TopK         int    `envconfig:"AGENT_RETRIEVAL_TOP_K" default:"4"`
	StepTimeout  string `envconfig:"AGENT_STEP_TIMEOUT" default:"30s"`
	GradeTimeout string `envconfig:"AGENT_GRADE_TIMEOUT" default:"15s"`
}

type ChatModelConfig struct {
	Model       string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.4"`
}

type GraderModelConfig struct {
	Model       string  `envconfig:"GRADER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GRADER_MAX_TOKENS" default:"64"`
	Temperature float32 `envconfig:"GRADER_TEMPERATURE" default:"0"`
}

type PromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Ragrelay"`
	Domain        string `envconfig:"PROMPT_DOMAIN" default:"customer support"`
}
