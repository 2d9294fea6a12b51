package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"

	"github.com/intakeflow/server/internal/agent/model"
)

type Anthropic struct {
	client anthropic.Client
	models model.AgentModels
	usage  UsageRecorder
}

func NewAnthropic(apiKey string, models model.AgentModels, usage UsageRecorder) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: models,
		usage:  usageOrNop(usage),
	}
}

func (a *Anthropic) Invoke(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	mc := a.models.For(role)
	system, turns := splitSystem(msgs)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		r := anthropic.MessageParamRoleUser
		if m.Role == schema.Assistant {
			r = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    r,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(mc.Model),
		Messages:    messages,
		MaxTokens:   int64(mc.MaxTokens),
		Temperature: anthropic.Float(float64(mc.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: system,
			Type: "text",
		}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("received empty response from Anthropic API")
	}

	var b strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	recordUsage(a.usage, role, mc.Model, &schema.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out})
	return b.String(), nil
}

var _ Capability = (*Anthropic)(nil)
