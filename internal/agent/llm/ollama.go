package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"

	"github.com/intakeflow/server/internal/agent/model"
)

// Ollama calls a local Ollama server; local models are priced at zero.
type Ollama struct {
	client *api.Client
	models model.AgentModels
	usage  UsageRecorder
}

func NewOllama(hostURL string, models model.AgentModels, usage UsageRecorder) (*Ollama, error) {
	u, err := url.Parse(hostURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q", hostURL)
	}
	return &Ollama{
		client: api.NewClient(u, http.DefaultClient),
		models: models,
		usage:  usageOrNop(usage),
	}, nil
}

func (o *Ollama) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	mc := o.models.For(role)

	messages := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    mc.Model,
		Messages: messages,
		Stream:   &stream,
		Format:   []byte(`"json"`),
		Options: map[string]any{
			"temperature": mc.Temperature,
			"num_predict": mc.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	recordUsage(o.usage, role, mc.Model, &schema.TokenUsage{
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
		TotalTokens:      response.PromptEvalCount + response.EvalCount,
	})
	return response.Message.Content, nil
}

var _ Capability = (*Ollama)(nil)
