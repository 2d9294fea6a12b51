package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/intakeflow/server/internal/agent/model"
)

// OpenAI calls the Responses API. The system prompt goes into Instructions
// and the remaining turns are flattened into one input string.
type OpenAI struct {
	client openai.Client
	models model.AgentModels
	usage  UsageRecorder
}

func NewOpenAI(apiKey string, models model.AgentModels, usage UsageRecorder) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		models: models,
		usage:  usageOrNop(usage),
	}
}

func (o *OpenAI) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	mc := o.models.For(role)
	system, turns := splitSystem(msgs)

	params := responses.ResponseNewParams{
		Model:           mc.Model,
		MaxOutputTokens: openai.Int(int64(mc.MaxTokens)),
		Temperature:     openai.Float(float64(mc.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flatten(turns))},
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from OpenAI Responses API")
	}

	recordUsage(o.usage, role, mc.Model, &schema.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	})
	return resp.OutputText(), nil
}

// flatten renders turns as labelled blocks; a single user turn is sent as is.
func flatten(turns []*schema.Message) string {
	if len(turns) == 1 && turns[0].Role == schema.User {
		return turns[0].Content
	}
	var b strings.Builder
	for i, m := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(":\n")
		b.WriteString(m.Content)
	}
	return b.String()
}

var _ Capability = (*OpenAI)(nil)
