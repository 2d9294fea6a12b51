package clarify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/intakeflow/server/internal/intake"
)

var (
	// ErrOutOfOrder is returned when an answer targets a question other than the active one.
	ErrOutOfOrder = errors.New("clarify: answer does not target the active question")
	// ErrEmptyAnswer is returned for blank answers.
	ErrEmptyAnswer = errors.New("clarify: answer is empty")
	// ErrNoPendingQuestion is returned when every question has been answered.
	ErrNoPendingQuestion = errors.New("clarify: no pending question")
)

// Question asks the user for one missing intake field.
type Question struct {
	FieldPath intake.FieldPath `json:"field_path"`
	Prompt    string           `json:"prompt_text"`
	Rationale string           `json:"rationale"`
	Options   []string         `json:"options,omitempty"`
	Answered  bool             `json:"answered"`
	Answer    *string          `json:"answer,omitempty"`
}

// Session is the ordered clarification dialogue of one intake.
type Session struct {
	Pending  []Question `json:"pending"`
	Answered []Question `json:"answered"`
}

// Active returns the first unanswered question.
func (s *Session) Active() (Question, bool) {
	if len(s.Pending) == 0 {
		return Question{}, false
	}
	return s.Pending[0], true
}

// Done reports whether no question is pending.
func (s *Session) Done() bool {
	return len(s.Pending) == 0
}

// Answer records text as the answer to the active question. path must name
// the active question; anything else is rejected with ErrOutOfOrder.
func (s *Session) Answer(path intake.FieldPath, text string) (Question, error) {
	active, ok := s.Active()
	if !ok {
		return Question{}, ErrNoPendingQuestion
	}
	if !active.FieldPath.Equal(path) {
		return Question{}, fmt.Errorf("%w: expected %s, got %s", ErrOutOfOrder, active.FieldPath, path)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Question{}, ErrEmptyAnswer
	}

	active.Answered = true
	active.Answer = &text
	s.Pending = s.Pending[1:]
	s.Answered = append(s.Answered, active)
	return active, nil
}

// Refresh replaces the pending questions with fresh, keeping the wording of
// questions that were already pending for the same path.
func (s *Session) Refresh(fresh []Question) {
	prev := make(map[string]Question, len(s.Pending))
	for _, q := range s.Pending {
		prev[q.FieldPath.String()] = q
	}
	out := make([]Question, 0, len(fresh))
	for _, q := range fresh {
		if old, ok := prev[q.FieldPath.String()]; ok {
			q.Prompt = old.Prompt
			q.Rationale = old.Rationale
		}
		out = append(out, q)
	}
	s.Pending = out
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	return Session{
		Pending:  cloneQuestions(s.Pending),
		Answered: cloneQuestions(s.Answered),
	}
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.FieldPath = append(intake.FieldPath(nil), q.FieldPath...)
		q.Options = append([]string(nil), q.Options...)
		if q.Answer != nil {
			a := *q.Answer
			q.Answer = &a
		}
		out[i] = q
	}
	return out
}
