package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/intake"
	logx "github.com/intakeflow/server/pkg/logger"
)

// ================ intake_submit ================

type SubmitTool struct {
	sessions Sessions
}

func NewSubmitTool(sessions Sessions) *SubmitTool {
	return &SubmitTool{sessions: sessions}
}

func (t *SubmitTool) Definition() mcp.Tool {
	return mcp.NewTool("intake_submit",
		mcp.WithDescription("Submit a client intake document and open a pipeline session. "+
			"Returns the validated intake and the clarification questions for every missing field."),
		mcp.WithString("intake",
			mcp.Required(),
			mcp.Description("The intake document as JSON or YAML text with the nine top-level sections"),
		),
		mcp.WithString("format",
			mcp.Description("json or yaml; detected from the content when omitted"),
			mcp.Enum("json", "yaml"),
		),
	)
}

type submitView struct {
	stateView
	Output model.SupervisorOutput `json:"output"`
}

func (t *SubmitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := req.GetString("intake", "")
	if strings.TrimSpace(doc) == "" {
		return mcp.NewToolResultError("'intake' is required"), nil
	}
	raw, err := intake.Decode([]byte(doc), intake.Format(req.GetString("format", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, err := t.sessions.Start(ctx, raw)
	if err != nil {
		return stateResult(st, err)
	}
	out, err := t.sessions.Output(ctx, st.SessionID)
	if err != nil {
		return stateResult(st, err)
	}
	logx.Info().Str("session_id", st.SessionID).Int("gaps", len(st.Gaps)).Msg("Intake submitted over MCP")
	return jsonResult(submitView{stateView: view(st), Output: out})
}

// ================ intake_answer ================

type AnswerTool struct {
	sessions Sessions
}

func NewAnswerTool(sessions Sessions) *AnswerTool {
	return &AnswerTool{sessions: sessions}
}

func (t *AnswerTool) Definition() mcp.Tool {
	return mcp.NewTool("intake_answer",
		mcp.WithDescription("Answer the active clarification question of a session. "+
			"Questions must be answered in the order they are listed."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by intake_submit")),
		mcp.WithString("field_path", mcp.Required(), mcp.Description("Dotted path of the question, e.g. ClientProfile.industry")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Free-text answer")),
	)
}

func (t *AnswerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	path, err := intake.ParsePath(req.GetString("field_path", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid field_path: %v", err)), nil
	}
	return stateResult(t.sessions.Answer(ctx, id, path, req.GetString("answer", "")))
}

// ================ intake_confirm ================

type ConfirmTool struct {
	sessions Sessions
}

func NewConfirmTool(sessions Sessions) *ConfirmTool {
	return &ConfirmTool{sessions: sessions}
}

func (t *ConfirmTool) Definition() mcp.Tool {
	return mcp.NewTool("intake_confirm",
		mcp.WithDescription("Approve or reject the validated intake of a session. "+
			"Research cannot start until the intake has no gaps and is approved."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by intake_submit")),
		mcp.WithBoolean("approved", mcp.Required(), mcp.Description("true to approve the intake")),
		mcp.WithString("comments", mcp.Description("Reviewer comments, recorded in the feedback log")),
	)
}

func (t *ConfirmTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	approval := model.Approval{
		Approved: req.GetBool("approved", false),
		Comments: req.GetString("comments", ""),
	}
	return stateResult(t.sessions.Confirm(ctx, id, approval))
}

// ================ pipeline_run ================

type RunTool struct {
	sessions Sessions
}

func NewRunTool(sessions Sessions) *RunTool {
	return &RunTool{sessions: sessions}
}

func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("pipeline_run",
		mcp.WithDescription("Run research and report generation for a confirmed session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by intake_submit")),
	)
}

func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	return stateResult(t.sessions.Run(ctx, id))
}

// ================ pipeline_status ================

type StatusTool struct {
	sessions Sessions
}

func NewStatusTool(sessions Sessions) *StatusTool {
	return &StatusTool{sessions: sessions}
}

func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("pipeline_status",
		mcp.WithDescription("Show the stage, gaps, active question and outputs of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by intake_submit")),
	)
}

func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	st, err := t.sessions.Get(ctx, id)
	if err != nil {
		return stateResult(st, err)
	}
	v := view(st)
	if n, err := t.sessions.HistoryLen(ctx, id); err != nil {
		logx.Warn().Err(err).Str("session_id", id).Msg("failed to count session history")
	} else {
		v.History = &n
	}
	return jsonResult(v)
}

// ================ session_clear ================

type ClearTool struct {
	sessions Sessions
}

func NewClearTool(sessions Sessions) *ClearTool {
	return &ClearTool{sessions: sessions}
}

func (t *ClearTool) Definition() mcp.Tool {
	return mcp.NewTool("session_clear",
		mcp.WithDescription("Discard a session: its state snapshot and its recorded dialogue."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by intake_submit")),
	)
}

func (t *ClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if err := t.sessions.Clear(ctx, id); err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return jsonResult(map[string]any{"session_id": id, "cleared": true})
}

// ================ memory_search ================

type MemorySearchTool struct {
	mem Memory
}

func NewMemorySearchTool(mem Memory) *MemorySearchTool {
	return &MemorySearchTool{mem: mem}
}

func (t *MemorySearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription("Search the memory of past engagements, ranked by similarity and recency."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("limit", mcp.Description("Max results (default: store setting, max: 20)")),
	)
}

type memoryHit struct {
	ID    string            `json:"id"`
	Text  string            `json:"text"`
	Score float64           `json:"score"`
	Meta  map[string]string `json:"metadata,omitempty"`
}

func (t *MemorySearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	limit := intArg(req, "limit", 0)
	if limit > 20 {
		limit = 20
	}

	items, err := t.mem.Retrieve(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	hits := make([]memoryHit, len(items))
	for i, it := range items {
		hits[i] = memoryHit{ID: it.ID, Text: it.Text, Score: it.RelevanceScore, Meta: it.Metadata}
	}
	return jsonResult(hits)
}
