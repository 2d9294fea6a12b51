package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/clarify"
	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/intake"
)

// stateView is the JSON shape every session tool returns.
type stateView struct {
	SessionID      string                  `json:"session_id"`
	Stage          model.Stage             `json:"stage"`
	Done           bool                    `json:"done"`
	Gaps           []string                `json:"gaps"`
	ActiveQuestion *clarify.Question       `json:"active_question,omitempty"`
	Pending        int                     `json:"pending_questions"`
	Confirmed      bool                    `json:"confirmed"`
	Failure        *model.StageFailure     `json:"failure,omitempty"`
	History        *int                    `json:"history_messages,omitempty"`
	Research       *model.ResearchSummary  `json:"research,omitempty"`
	Generation     *model.GenerationOutput `json:"generation,omitempty"`
}

func view(st *model.PipelineState) stateView {
	v := stateView{
		SessionID: st.SessionID,
		Stage:     st.Stage,
		Done:      st.Stage.Terminal(),
		Gaps:      intake.Strings(st.Gaps),
		Pending:   len(st.PendingQuestions),
		Confirmed: st.Confirmed,
		Failure:   st.Failure,
	}
	if len(st.PendingQuestions) > 0 {
		q := st.PendingQuestions[0]
		v.ActiveQuestion = &q
	}
	if out, ok := st.AgentOutputs[model.RoleResearch]; ok {
		v.Research = out.Research
	}
	if out, ok := st.AgentOutputs[model.RoleGeneration]; ok {
		v.Generation = out.Generation
	}
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// stateResult reports st, turning err into a tool error that still carries
// the state when there is one.
func stateResult(st *model.PipelineState, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(view(st))
	}
	msg := describe(err)
	if st == nil {
		return mcp.NewToolResultError(msg), nil
	}
	b, mErr := json.MarshalIndent(view(st), "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultError(msg + "\n\n" + string(b)), nil
}

func describe(err error) string {
	var gap *errx.ValidationGapError
	if errors.As(err, &gap) {
		return fmt.Sprintf("intake still has %d gap(s): %v", len(gap.Gaps), gap.Gaps)
	}
	if errors.Is(err, model.ErrSessionNotFound) {
		return "unknown session_id"
	}
	var stage *errx.StageError
	if errors.As(err, &stage) {
		return fmt.Sprintf("%s (%s)", errx.SafeMessage(err), errx.Kind(err))
	}
	return err.Error()
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
