package model

import (
	"time"

	"github.com/intakeflow/server/internal/clarify"
	"github.com/intakeflow/server/internal/intake"
)

// PipelineState is the per-session state owned by the router. It is never
// shared between sessions; transitions work on a Clone and commit on success.
type PipelineState struct {
	SessionID         string               `json:"session_id"`
	Stage             Stage                `json:"stage"`
	Intake            intake.Record        `json:"intake"`
	Gaps              []intake.FieldPath   `json:"gaps"`
	PendingQuestions  []clarify.Question   `json:"pending_questions"`
	AnsweredQuestions []clarify.Question   `json:"answered_questions"`
	AgentOutputs      map[Role]AgentOutput `json:"agent_outputs"`
	Confirmed         bool                 `json:"confirmed"`
	Feedback          []Feedback           `json:"feedback,omitempty"`
	Failure           *StageFailure        `json:"failure,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// StageFailure records why the pipeline stopped.
type StageFailure struct {
	Stage   Stage  `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Feedback is one confirmation decision on the validated intake.
type Feedback struct {
	SessionID string    `json:"workflow_id"`
	Approved  bool      `json:"approved"`
	Comments  string    `json:"comments"`
	Timestamp time.Time `json:"timestamp"`
}

// Approval is the caller's decision on a gap-free intake.
type Approval struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments,omitempty"`
}

// Clarification returns the question dialogue as a clarify.Session.
func (s *PipelineState) Clarification() clarify.Session {
	return clarify.Session{Pending: s.PendingQuestions, Answered: s.AnsweredQuestions}
}

// SetClarification stores the dialogue back into the state.
func (s *PipelineState) SetClarification(sess clarify.Session) {
	s.PendingQuestions = sess.Pending
	s.AnsweredQuestions = sess.Answered
}

// Clone returns a deep copy of the state.
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	out := *s
	out.Intake = s.Intake.Clone()
	if s.Gaps != nil {
		out.Gaps = make([]intake.FieldPath, len(s.Gaps))
		for i, g := range s.Gaps {
			out.Gaps[i] = append(intake.FieldPath(nil), g...)
		}
	}
	sess := s.Clarification().Clone()
	out.PendingQuestions = sess.Pending
	out.AnsweredQuestions = sess.Answered
	if s.AgentOutputs != nil {
		out.AgentOutputs = make(map[Role]AgentOutput, len(s.AgentOutputs))
		for k, v := range s.AgentOutputs {
			out.AgentOutputs[k] = v
		}
	}
	out.Feedback = append([]Feedback(nil), s.Feedback...)
	if s.Failure != nil {
		f := *s.Failure
		out.Failure = &f
	}
	return &out
}
