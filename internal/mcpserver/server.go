// Package mcpserver exposes the intake pipeline as MCP tools over stdio.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/intake"
	"github.com/intakeflow/server/internal/memory"
)

// Sessions is the session registry the tools drive.
type Sessions interface {
	Start(ctx context.Context, raw any) (*model.PipelineState, error)
	Answer(ctx context.Context, id string, path intake.FieldPath, text string) (*model.PipelineState, error)
	Confirm(ctx context.Context, id string, approval model.Approval) (*model.PipelineState, error)
	Run(ctx context.Context, id string) (*model.PipelineState, error)
	Get(ctx context.Context, id string) (*model.PipelineState, error)
	Output(ctx context.Context, id string) (model.SupervisorOutput, error)
	HistoryLen(ctx context.Context, id string) (int, error)
	Clear(ctx context.Context, id string) error
}

// Memory is the read side of the memory store.
type Memory interface {
	Retrieve(ctx context.Context, query string, k int) ([]memory.Item, error)
}

// New creates the MCP server with every pipeline tool registered.
func New(sessions Sessions, mem Memory, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"intakeflow",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	submit := NewSubmitTool(sessions)
	s.AddTool(submit.Definition(), submit.Handle)

	answer := NewAnswerTool(sessions)
	s.AddTool(answer.Definition(), answer.Handle)

	confirm := NewConfirmTool(sessions)
	s.AddTool(confirm.Definition(), confirm.Handle)

	run := NewRunTool(sessions)
	s.AddTool(run.Definition(), run.Handle)

	status := NewStatusTool(sessions)
	s.AddTool(status.Definition(), status.Handle)

	sessionClear := NewClearTool(sessions)
	s.AddTool(sessionClear.Definition(), sessionClear.Handle)

	if mem != nil {
		search := NewMemorySearchTool(mem)
		s.AddTool(search.Definition(), search.Handle)
	}

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Intake pipeline. Submit an intake with intake_submit, answer each
pending clarification question in order with intake_answer, approve the
validated intake with intake_confirm, then call pipeline_run to produce the
research summary and the reports. pipeline_status shows where a session is;
session_clear discards a session and its dialogue.`
