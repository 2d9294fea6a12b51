package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/intakeflow/server/internal/agent/model"
)

var (
	//go:embed template/supervisor.txt
	supervisorSystemPrompt string
	//go:embed template/research.txt
	researchSystemPrompt string
	//go:embed template/generation.txt
	generationSystemPrompt string
	//go:embed template/correction.txt
	correctionPrompt string
)

// ContextVar is the template variable that carries the rendered agent context.
const ContextVar = "context"

const userTemplate = "{{.context}}"

func systemPrompt(role model.Role) (string, error) {
	switch role {
	case model.RoleSupervisor:
		return supervisorSystemPrompt, nil
	case model.RoleResearch:
		return researchSystemPrompt, nil
	case model.RoleGeneration:
		return generationSystemPrompt, nil
	}
	return "", fmt.Errorf("no prompt for role %q", role)
}

// Render formats the system and user messages of role via the Eino prompt
// component. Prompt callbacks registered on ctx observe the render.
// vars must carry ContextVar.
func Render(ctx context.Context, role model.Role, vars map[string]any) ([]*schema.Message, error) {
	sys, err := systemPrompt(role)
	if err != nil {
		return nil, err
	}
	if _, ok := vars[ContextVar]; !ok {
		return nil, fmt.Errorf("%s prompt: missing %q variable", role, ContextVar)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(sys),
		schema.UserMessage(userTemplate),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt: %w", role, err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("%s prompt: expected 2 messages, got %d", role, len(msgs))
	}
	return msgs, nil
}

// RenderCorrection formats the corrective instruction sent with a retry
// after an unusable answer.
func RenderCorrection(ctx context.Context, reason string) (*schema.Message, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(correctionPrompt))
	msgs, err := tpl.Format(ctx, map[string]any{"reason": reason})
	if err != nil {
		return nil, fmt.Errorf("correction prompt: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("correction prompt: empty result")
	}
	return msgs[0], nil
}
