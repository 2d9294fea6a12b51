package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/intakeflow/server/internal/memory"
	"google.golang.org/genai"
)

type Config struct {
	Provider   string `envconfig:"EMBEDDING_PROVIDER" default:"hash"`
	Model      string `envconfig:"EMBEDDING_MODEL"`
	Dimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"256"`
}

// Keys carries the provider credentials an embedder may need.
type Keys struct {
	GeminiAPIKey  string
	GeminiBaseURL string
	OpenAIAPIKey  string
}

// GenAIFactory builds a Gemini client; the llm package supplies the real one.
type GenAIFactory func(ctx context.Context, apiKey, baseURL string) (*genai.Client, error)

// New returns the embedder named by cfg.Provider.
func New(ctx context.Context, cfg Config, keys Keys, newGenAI GenAIFactory) (memory.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "hash":
		return NewHash(cfg.Dimensions), nil
	case "gemini":
		if keys.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini embeddings need GEMINI_API_KEY")
		}
		if newGenAI == nil {
			return nil, fmt.Errorf("gemini embeddings need a client factory")
		}
		client, err := newGenAI(ctx, keys.GeminiAPIKey, keys.GeminiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		return NewGemini(client, cfg.Model, cfg.Dimensions), nil
	case "openai":
		if keys.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai embeddings need OPENAI_API_KEY")
		}
		return NewOpenAI(keys.OpenAIAPIKey, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
