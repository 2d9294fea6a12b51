package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakeflow/server/internal/agent/llm"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/pipeline"
	"github.com/intakeflow/server/internal/intake"
	"github.com/intakeflow/server/internal/memory"
	"github.com/intakeflow/server/internal/memory/embed"
	logx "github.com/intakeflow/server/pkg/logger"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	return newPipelineWith(t, llm.CapabilityFunc(func(_ context.Context, role model.Role, _ []*schema.Message) (string, error) {
		if role == model.RoleResearch {
			return `{"Highlights":["referrals"],"PainPoints":["manual booking"],"CriticalRisks":[],` +
				`"SolutionSummary":"A booking agent.","WorkflowOutline":[],"AgentMap":{},"ToolHooks":[]}`, nil
		}
		return `{"client_report":"Report for the client","developer_report":"Build notes"}`, nil
	}))
}

func newPipelineWith(t *testing.T, capability llm.Capability) *pipeline.Pipeline {
	t.Helper()
	logx.Silence()
	p, err := pipeline.Build(context.Background(), pipeline.Config{
		LLM:          model.LLMConfig{ContextTokenBudget: 2000},
		Conversation: model.ConversationConfig{MaxHistoryLength: 20, HistoryTurns: 5},
		Memory:       memory.DefaultConfig(),
		Embedding:    embed.Config{Provider: "hash"},
	}, pipeline.WithCapability(capability))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func intakeJSON(t *testing.T, missing string) string {
	t.Helper()
	rec := intake.Record{}
	for _, f := range intake.Schema() {
		if f.Path.String() == missing {
			continue
		}
		var v any = "Bright Smile Dental"
		switch f.Kind {
		case intake.KindNumber:
			v = float64(8)
		case intake.KindList:
			v = []any{"instagram"}
		}
		require.NoError(t, rec.Set(f.Path, v))
	}
	b, err := json.Marshal(rec.Map())
	require.NoError(t, err)
	return string(b)
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeView(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, r.IsError, resultText(r))
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &v))
	return v
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestTools_FullFlow(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	submit := NewSubmitTool(p.Sessions)
	res, err := submit.Handle(ctx, makeReq(map[string]any{"intake": intakeJSON(t, "ClientProfile.industry")}))
	require.NoError(t, err)
	v := decodeView(t, res)
	id := v["session_id"].(string)
	assert.Equal(t, string(model.StageAwaitingClarification), v["stage"])
	assert.Equal(t, []any{"ClientProfile.industry"}, v["gaps"])
	out := v["output"].(map[string]any)
	assert.Len(t, out["clarification_questions"], 1)

	// running before confirmation is refused
	res, err = NewRunTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "gap")

	res, err = NewAnswerTool(p.Sessions).Handle(ctx, makeReq(map[string]any{
		"session_id": id, "field_path": "ClientProfile.industry", "answer": "Dental care",
	}))
	require.NoError(t, err)
	v = decodeView(t, res)
	assert.Empty(t, v["gaps"])

	res, err = NewConfirmTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id, "approved": true}))
	require.NoError(t, err)
	v = decodeView(t, res)
	assert.Equal(t, string(model.StageValidated), v["stage"])

	res, err = NewRunTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	v = decodeView(t, res)
	assert.Equal(t, string(model.StageComplete), v["stage"])
	gen := v["generation"].(map[string]any)
	assert.Equal(t, "Report for the client", gen["client_report"])

	res, err = NewStatusTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	v = decodeView(t, res)
	assert.Equal(t, string(model.StageComplete), v["stage"])
	assert.Equal(t, true, v["done"])
	assert.Greater(t, v["history_messages"].(float64), float64(0))

	res, err = NewMemorySearchTool(p.Memory).Handle(ctx, makeReq(map[string]any{"query": "dental booking agent", "limit": float64(5)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var hits []memoryHit
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &hits))
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "A booking agent.")
}

func TestRunTool_StageFailure(t *testing.T) {
	p := newPipelineWith(t, llm.CapabilityFunc(func(context.Context, model.Role, []*schema.Message) (string, error) {
		return "I cannot answer in JSON today.", nil
	}))
	ctx := context.Background()

	res, err := NewSubmitTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"intake": intakeJSON(t, "")}))
	require.NoError(t, err)
	id := decodeView(t, res)["session_id"].(string)

	_, err = NewConfirmTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id, "approved": true}))
	require.NoError(t, err)

	res, err = NewRunTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text := resultText(res)
	assert.Contains(t, text, "stage RESEARCHING failed (agent_output)")
	assert.Contains(t, text, `"stage": "FAILED"`)
}

func TestClearTool(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	res, err := NewSubmitTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"intake": intakeJSON(t, "ClientProfile.industry")}))
	require.NoError(t, err)
	v := decodeView(t, res)
	id := v["session_id"].(string)
	assert.Equal(t, false, v["done"])

	tool := NewClearTool(p.Sessions)
	res, err = tool.Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.Equal(t, true, decodeView(t, res)["cleared"])

	res, err = NewStatusTool(p.Sessions).Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "unknown session_id")

	res, err = tool.Handle(ctx, makeReq(map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(ctx, makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSubmitTool_Errors(t *testing.T) {
	p := newTestPipeline(t)
	tool := NewSubmitTool(p.Sessions)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing intake", args: map[string]any{}, want: "'intake' is required"},
		{name: "not a document", args: map[string]any{"intake": "{not json", "format": "json"}, want: ""},
		{name: "unknown section", args: map[string]any{"intake": `{"Billing": {}}`}, want: "FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(res), tt.want)
		})
	}
}

func TestAnswerTool_Errors(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	tool := NewAnswerTool(p.Sessions)

	res, err := tool.Handle(ctx, makeReq(map[string]any{"field_path": "ClientProfile.industry", "answer": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(ctx, makeReq(map[string]any{"session_id": "missing", "field_path": "ClientProfile.industry", "answer": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "unknown session_id")

	res, err = tool.Handle(ctx, makeReq(map[string]any{"session_id": "missing", "field_path": "", "answer": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "invalid field_path")
}

func TestMemorySearchTool_RequiresQuery(t *testing.T) {
	p := newTestPipeline(t)
	res, err := NewMemorySearchTool(p.Memory).Handle(context.Background(), makeReq(map[string]any{"query": "  "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDefinitions(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewSubmitTool(p.Sessions).Definition(), "intake_submit", []string{"intake"}},
		{NewAnswerTool(p.Sessions).Definition(), "intake_answer", []string{"session_id", "field_path", "answer"}},
		{NewConfirmTool(p.Sessions).Definition(), "intake_confirm", []string{"session_id", "approved"}},
		{NewRunTool(p.Sessions).Definition(), "pipeline_run", []string{"session_id"}},
		{NewStatusTool(p.Sessions).Definition(), "pipeline_status", []string{"session_id"}},
		{NewClearTool(p.Sessions).Definition(), "session_clear", []string{"session_id"}},
		{NewMemorySearchTool(p.Memory).Definition(), "memory_search", []string{"query"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.def.Name)
			assert.ElementsMatch(t, tt.required, tt.def.InputSchema.Required)
			for _, r := range tt.required {
				assert.Contains(t, tt.def.InputSchema.Properties, r)
			}
		})
	}

	assert.NotNil(t, New(p.Sessions, p.Memory, "test"))
}
