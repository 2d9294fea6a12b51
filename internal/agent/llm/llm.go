// Package llm adapts model providers to the agent capability used by the
// invocation adapter.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/intakeflow/server/internal/agent/model"
	logx "github.com/intakeflow/server/pkg/logger"
)

// Capability answers an agent prompt with raw text.
type Capability interface {
	Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error)

func (f CapabilityFunc) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	return f(ctx, role, msgs)
}

// UsageRecorder receives token usage and cost of each model call.
type UsageRecorder interface {
	ObserveUsage(role, model string, promptTokens, completionTokens int, cost float64)
}

type nopUsage struct{}

func (nopUsage) ObserveUsage(string, string, int, int, float64) {}

func usageOrNop(u UsageRecorder) UsageRecorder {
	if u == nil {
		return nopUsage{}
	}
	return u
}

// recordUsage prices usage with the hardcoded table, logs it and forwards it
// to rec. It returns the total cost in USD.
func recordUsage(rec UsageRecorder, role model.Role, modelName string, usage *schema.TokenUsage) float64 {
	if usage == nil {
		return 0
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("role", string(role)).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	rec.ObserveUsage(string(role), modelName, usage.PromptTokens, usage.CompletionTokens, totalC)
	return totalC
}

// splitSystem separates the system prompt from the conversation turns.
func splitSystem(msgs []*schema.Message) (string, []*schema.Message) {
	var sys []string
	rest := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// Provider names a supported model backend.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		return p, nil
	case "":
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("unknown llm provider %q", s)
}

// New builds the capability selected by cfg.Provider.
func New(ctx context.Context, cfg model.LLMConfig, models model.AgentModels, usage UsageRecorder) (Capability, error) {
	p, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	switch p {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %s", p)
		}
		return NewOpenAI(cfg.OpenAIAPIKey, models, usage), nil
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s", p)
		}
		return NewAnthropic(cfg.AnthropicAPIKey, models, usage), nil
	case ProviderOllama:
		return NewOllama(cfg.OllamaHost, models, usage)
	default:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for provider %s", p)
		}
		return NewGemini(ctx, cfg, models, usage)
	}
}
