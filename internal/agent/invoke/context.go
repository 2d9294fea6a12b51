package invoke

import (
	"encoding/json"
	"fmt"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/clarify"
	"github.com/intakeflow/server/internal/intake"
	"github.com/intakeflow/server/internal/tokens"
)

// Turn is one entry of the recent session history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentContext is everything an agent sees about a session. Field order is
// fixed and maps marshal with sorted keys, so equal contexts render to equal
// bytes.
type AgentContext struct {
	SessionID        string                 `json:"session_id"`
	Stage            model.Stage            `json:"stage"`
	Intake           intake.Record          `json:"intake"`
	Gaps             []intake.FieldPath     `json:"gaps,omitempty"`
	PendingQuestions []clarify.Question     `json:"pending_questions,omitempty"`
	Research         *model.ResearchSummary `json:"research_summary,omitempty"`
	// Memory holds recalled snippets in rank order.
	Memory  []string `json:"memory,omitempty"`
	History []Turn   `json:"history,omitempty"`
}

// Render trims memory and history to budget tokens and marshals the context.
// Memory keeps its highest ranked prefix; history keeps its newest turns.
func Render(actx AgentContext, counter *tokens.Counter, budget int) (string, error) {
	if budget > 0 {
		actx.Memory = counter.Fit(actx.Memory, budget)
		used := 0
		for _, m := range actx.Memory {
			used += counter.Count(m)
		}
		actx.History = fitNewest(actx.History, counter, budget-used)
	}
	b, err := json.Marshal(actx)
	if err != nil {
		return "", fmt.Errorf("render agent context: %w", err)
	}
	return string(b), nil
}

func fitNewest(turns []Turn, counter *tokens.Counter, budget int) []Turn {
	if budget <= 0 {
		return nil
	}
	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		used += counter.Count(turns[i].Content)
		if used > budget {
			break
		}
		start = i
	}
	return turns[start:]
}
