package model

import "time"

// ================ Config ================
type LLMConfig struct {
	Provider        string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL   string        `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	OllamaHost      string        `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	Timeout         time.Duration `envconfig:"AGENT_TIMEOUT" default:"90s"`
	// ContextTokenBudget caps the tokens spent on memory snippets and history in an agent prompt.
	ContextTokenBudget int `envconfig:"AGENT_CONTEXT_TOKEN_BUDGET" default:"6000"`
}

type AgentModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

type SupervisorModelConfig struct {
	Model       string  `envconfig:"SUPERVISOR_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"SUPERVISOR_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"SUPERVISOR_TEMPERATURE" default:"0.1"`
}

type ResearchModelConfig struct {
	Model       string  `envconfig:"RESEARCH_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESEARCH_MAX_TOKENS" default:"8000"`
	Temperature float32 `envconfig:"RESEARCH_TEMPERATURE" default:"0.3"`
}

type GenerationModelConfig struct {
	Model       string  `envconfig:"GENERATION_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GENERATION_MAX_TOKENS" default:"12000"`
	Temperature float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.4"`
}

// AgentModels groups the per-role model settings.
type AgentModels struct {
	Supervisor SupervisorModelConfig
	Research   ResearchModelConfig
	Generation GenerationModelConfig
}

// For returns the model settings of role.
func (m AgentModels) For(role Role) AgentModelConfig {
	switch role {
	case RoleSupervisor:
		return AgentModelConfig{Model: m.Supervisor.Model, MaxTokens: m.Supervisor.MaxTokens, Temperature: m.Supervisor.Temperature}
	case RoleResearch:
		return AgentModelConfig{Model: m.Research.Model, MaxTokens: m.Research.MaxTokens, Temperature: m.Research.Temperature}
	default:
		return AgentModelConfig{Model: m.Generation.Model, MaxTokens: m.Generation.MaxTokens, Temperature: m.Generation.Temperature}
	}
}

type ConversationConfig struct {
	MaxHistoryLength int           `envconfig:"MAX_HISTORY_LENGTH" default:"100"`
	HistoryTurns     int           `envconfig:"AGENT_HISTORY_TURNS" default:"10"`
	HistoryTTL       time.Duration `envconfig:"CONVERSATION_TTL" default:"0"`
}

type PipelineConfig struct {
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"0"`
	SupervisorReview bool          `envconfig:"PIPELINE_SUPERVISOR_REVIEW" default:"false"`
}
