package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/observers"
	logx "github.com/intakeflow/server/pkg/logger"
)

// NewGenAIClient creates the Gemini API client shared by chat models and embeddings.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
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

type geminiRole struct {
	runnable  compose.Runnable[[]*schema.Message, *schema.Message]
	modelName string
}

// Gemini runs one compiled Eino chain per role, each wrapping its own chat model.
type Gemini struct {
	roles map[model.Role]geminiRole
	usage UsageRecorder
}

func NewGemini(ctx context.Context, cfg model.LLMConfig, models model.AgentModels, usage UsageRecorder) (*Gemini, error) {
	client, err := NewGenAIClient(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	if err != nil {
		return nil, err
	}

	g := &Gemini{roles: make(map[model.Role]geminiRole, 3), usage: usageOrNop(usage)}
	for _, role := range model.Roles() {
		mc := models.For(role)
		temperature := mc.Temperature
		maxTokens := mc.MaxTokens

		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       mc.Model,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  genai.Ptr(int32(2000)),
			},
		})
		if err != nil {
			logx.Error().Err(err).Str("role", string(role)).Msg("Error creating chat model")
			return nil, fmt.Errorf("error creating %s model: %w", role, err)
		}

		runnable, err := compose.NewChain[[]*schema.Message, *schema.Message]().
			AppendChatModel(cm).
			Compile(ctx)
		if err != nil {
			return nil, fmt.Errorf("compile %s chain: %w", role, err)
		}
		g.roles[role] = geminiRole{runnable: runnable, modelName: mc.Model}
	}

	logx.Debug().Msg("Gemini chat models built successfully")
	return g, nil
}

func (g *Gemini) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	r, ok := g.roles[role]
	if !ok {
		return "", fmt.Errorf("no gemini model for role %q", role)
	}
	out, err := r.runnable.Invoke(ctx, msgs, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	if out.ResponseMeta != nil {
		recordUsage(g.usage, role, r.modelName, out.ResponseMeta.Usage)
	}
	return out.Content, nil
}

var _ Capability = (*Gemini)(nil)
