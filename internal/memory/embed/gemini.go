package embed

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "text-embedding-004"

// Gemini embeds text with the Gemini embedding API.
type Gemini struct {
	client *genai.Client
	model  string
	dims   int32
}

func NewGemini(client *genai.Client, model string, dims int) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, dims: int32(dims)}
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if g.dims > 0 {
		dims := g.dims
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
