// Package router drives a session through the intake pipeline stages.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intakeflow/server/internal/agent/conversations"
	"github.com/intakeflow/server/internal/agent/invoke"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/clarify"
	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/intake"
	"github.com/intakeflow/server/internal/memory"
	logx "github.com/intakeflow/server/pkg/logger"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current stage.
	ErrInvalidTransition = errors.New("router: operation not allowed in current stage")
	// ErrNotConfirmed is returned by Run when the intake was never approved.
	ErrNotConfirmed = errors.New("router: intake not confirmed")
)

// Agent invokes one reasoning role.
type Agent interface {
	Invoke(ctx context.Context, role model.Role, actx invoke.AgentContext) (model.AgentOutput, error)
}

// Memory is the slice of memory.Store the router needs.
type Memory interface {
	Put(ctx context.Context, text string, meta map[string]string) (string, error)
	Retrieve(ctx context.Context, query string, k int) ([]memory.Item, error)
}

// Observer receives stage transitions and failures.
type Observer interface {
	ObserveStage(stage string)
	ObserveFailure(stage, kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string)           {}
func (nopObserver) ObserveFailure(string, string) {}

type Option func(*Router)

func WithEngine(e *clarify.Engine) Option {
	return func(r *Router) { r.engine = e }
}

// WithMemory enables retrieval before and storage after agent calls.
func WithMemory(m Memory, k int) Option {
	return func(r *Router) {
		r.memory = m
		r.retrievalK = k
	}
}

func WithHistory(mm *conversations.MessagesManager) Option {
	return func(r *Router) { r.history = mm }
}

func WithFeedbackLog(l model.FeedbackLog) Option {
	return func(r *Router) { r.feedback = l }
}

func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithSupervisorReview lets the supervisor agent rephrase pending questions.
func WithSupervisorReview(on bool) Option {
	return func(r *Router) { r.supervisorReview = on }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router owns no session state; every operation works on the state it is given.
type Router struct {
	agent            Agent
	engine           *clarify.Engine
	memory           Memory
	retrievalK       int
	history          *conversations.MessagesManager
	feedback         model.FeedbackLog
	observer         Observer
	supervisorReview bool
	now              func() time.Time
}

func New(agent Agent, opts ...Option) *Router {
	r := &Router{
		agent:    agent,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = clarify.NewEngine(clarify.DefaultCatalog())
	}
	return r
}

// Start validates raw and opens the clarification dialogue when fields are
// missing. A malformed intake or a failed supervisor review leaves the
// returned state FAILED with nothing of the intake committed, and the error
// is returned alongside it.
func (r *Router) Start(ctx context.Context, sessionID string, raw any) (*model.PipelineState, error) {
	now := r.now()
	st := &model.PipelineState{
		SessionID:    sessionID,
		Stage:        model.StageIntakeReceived,
		AgentOutputs: map[model.Role]model.AgentOutput{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.observer.ObserveStage(string(st.Stage))

	res, err := intake.Validate(raw)
	if err != nil {
		return st, r.fail(st, model.StageIntakeReceived, err)
	}

	next := st.Clone()
	r.advance(next, model.StageValidating)
	next.Intake = res.Record
	next.Gaps = res.Gaps
	r.recordUser(ctx, sessionID, "intake submitted", res.Record)

	if err := r.clarify(ctx, next, nil); err != nil {
		return st, r.fail(st, model.StageValidating, err)
	}
	*st = *next
	return st, nil
}

// Answer resolves the active clarification question and re-validates.
// Caller errors (wrong stage, out of order, blank) leave st untouched. A failed
// supervisor review moves st to FAILED without merging the answer.
func (r *Router) Answer(ctx context.Context, st *model.PipelineState, path intake.FieldPath, text string) error {
	if st.Stage != model.StageAwaitingClarification {
		return fmt.Errorf("%w: answer in %s", ErrInvalidTransition, st.Stage)
	}

	next := st.Clone()
	sess := next.Clarification()
	q, err := sess.Answer(path, text)
	if err != nil {
		return err
	}
	res, err := r.engine.Apply(next.Intake, q, *q.Answer)
	if err != nil {
		return err
	}

	r.advance(next, model.StageValidating)
	next.Intake = res.Record
	next.Gaps = res.Gaps
	r.recordUser(ctx, st.SessionID, fmt.Sprintf("answer %s: %s", q.FieldPath, *q.Answer), nil)

	if err := r.clarify(ctx, next, &sess); err != nil {
		return r.fail(st, model.StageValidating, err)
	}
	*st = *next
	return nil
}

// clarify refreshes the pending questions from the current gaps and moves to
// AWAITING_CLARIFICATION when any remain.
func (r *Router) clarify(ctx context.Context, st *model.PipelineState, sess *clarify.Session) error {
	if sess == nil {
		s := st.Clarification()
		sess = &s
	}
	sess.Refresh(r.engine.Questions(st.Gaps))
	st.SetClarification(*sess)
	if len(st.Gaps) == 0 {
		return nil
	}

	if r.supervisorReview {
		if err := r.review(ctx, st); err != nil {
			return err
		}
	}
	r.advance(st, model.StageAwaitingClarification)
	if q, ok := sess.Active(); ok {
		r.recordAssistant(ctx, st.SessionID, q.Prompt)
	}
	return nil
}

// review asks the supervisor to rephrase pending questions. Only questions for
// paths in the deterministic gap set are taken, and only their wording.
func (r *Router) review(ctx context.Context, st *model.PipelineState) error {
	out, err := r.agent.Invoke(ctx, model.RoleSupervisor, invoke.AgentContext{
		SessionID:        st.SessionID,
		Stage:            st.Stage,
		Intake:           st.Intake,
		Gaps:             st.Gaps,
		PendingQuestions: st.PendingQuestions,
	})
	if err != nil {
		return err
	}
	setOutput(st, out)
	if out.Supervisor == nil {
		return nil
	}

	rephrased := make(map[string]clarify.Question, len(out.Supervisor.ClarificationQuestions))
	for _, q := range out.Supervisor.ClarificationQuestions {
		rephrased[q.FieldPath.String()] = q
	}
	accepted := 0
	for i, q := range st.PendingQuestions {
		alt, ok := rephrased[q.FieldPath.String()]
		if !ok {
			continue
		}
		if p := strings.TrimSpace(alt.Prompt); p != "" {
			st.PendingQuestions[i].Prompt = p
			accepted++
		}
		if rat := strings.TrimSpace(alt.Rationale); rat != "" {
			st.PendingQuestions[i].Rationale = rat
		}
	}
	logx.Debug().
		Str("session_id", st.SessionID).
		Int("proposed", len(out.Supervisor.ClarificationQuestions)).
		Int("accepted", accepted).
		Msg("supervisor review applied")
	return nil
}

// Confirm records the caller's decision on a gap-free intake. Approval moves
// to VALIDATED; rejection stays in VALIDATING with the comments logged.
func (r *Router) Confirm(ctx context.Context, st *model.PipelineState, approval model.Approval) error {
	if st.Stage != model.StageValidating {
		return fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, st.Stage)
	}
	if len(st.Gaps) > 0 {
		return &errx.ValidationGapError{Gaps: intake.Strings(st.Gaps)}
	}

	next := st.Clone()
	fb := model.Feedback{
		SessionID: st.SessionID,
		Approved:  approval.Approved,
		Comments:  strings.TrimSpace(approval.Comments),
		Timestamp: r.now(),
	}
	next.Feedback = append(next.Feedback, fb)
	if r.feedback != nil {
		if err := r.feedback.Append(ctx, fb); err != nil {
			logx.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to append feedback")
		}
	}

	if approval.Approved {
		next.Confirmed = true
		r.advance(next, model.StageValidated)
		r.recordUser(ctx, st.SessionID, "intake approved", nil)
	} else {
		next.UpdatedAt = r.now()
		r.recordUser(ctx, st.SessionID, "intake rejected: "+fb.Comments, nil)
		logx.Info().Str("session_id", st.SessionID).Str("comments", fb.Comments).Msg("intake rejected by reviewer")
	}
	*st = *next
	return nil
}

// Run executes research then generation on a confirmed, gap-free intake.
// It fails closed: without confirmation nothing runs and st is untouched.
func (r *Router) Run(ctx context.Context, st *model.PipelineState) error {
	if err := ready(st); err != nil {
		return err
	}

	memories := r.recall(ctx, st)
	turns := r.recentTurns(ctx, st.SessionID)

	// RESEARCHING
	next := st.Clone()
	r.advance(next, model.StageResearching)
	*st = *next
	research, err := r.agent.Invoke(ctx, model.RoleResearch, invoke.AgentContext{
		SessionID: st.SessionID,
		Stage:     st.Stage,
		Intake:    st.Intake,
		Memory:    memories,
		History:   turns,
	})
	if err != nil {
		return r.fail(st, model.StageResearching, err)
	}
	next = st.Clone()
	setOutput(next, research)
	*st = *next
	r.remember(ctx, st, research.Research)

	// GENERATING
	if !st.Confirmed || len(st.Gaps) > 0 {
		return r.fail(st, model.StageGenerating, ErrNotConfirmed)
	}
	next = st.Clone()
	r.advance(next, model.StageGenerating)
	*st = *next
	generation, err := r.agent.Invoke(ctx, model.RoleGeneration, invoke.AgentContext{
		SessionID: st.SessionID,
		Stage:     st.Stage,
		Intake:    st.Intake,
		Research:  research.Research,
		Memory:    memories,
		History:   turns,
	})
	if err != nil {
		return r.fail(st, model.StageGenerating, err)
	}

	next = st.Clone()
	setOutput(next, generation)
	r.advance(next, model.StageComplete)
	*st = *next
	r.recordAssistant(ctx, st.SessionID, "reports generated", nil)
	return nil
}

func setOutput(st *model.PipelineState, out model.AgentOutput) {
	if st.AgentOutputs == nil {
		st.AgentOutputs = map[model.Role]model.AgentOutput{}
	}
	st.AgentOutputs[out.Role] = out
}

func ready(st *model.PipelineState) error {
	if len(st.Gaps) > 0 {
		return &errx.ValidationGapError{Gaps: intake.Strings(st.Gaps)}
	}
	if !st.Confirmed {
		return ErrNotConfirmed
	}
	if st.Stage != model.StageValidated {
		return fmt.Errorf("%w: run in %s", ErrInvalidTransition, st.Stage)
	}
	return nil
}

// Output returns the validation boundary object.
func (r *Router) Output(st *model.PipelineState) model.SupervisorOutput {
	qs := st.Clarification().Clone().Pending
	if qs == nil {
		qs = []clarify.Question{}
	}
	rec := st.Intake.Clone()
	if rec == nil {
		rec = intake.Record{}
	}
	return model.SupervisorOutput{ValidatedIntake: rec, ClarificationQuestions: qs}
}

func (r *Router) advance(st *model.PipelineState, stage model.Stage) {
	logx.Debug().Str("session_id", st.SessionID).Str("from", string(st.Stage)).Str("stage", string(stage)).Msg("stage transition")
	st.Stage = stage
	st.UpdatedAt = r.now()
	r.observer.ObserveStage(string(stage))
}

// fail moves st to FAILED, recording the stage that was being attempted.
func (r *Router) fail(st *model.PipelineState, stage model.Stage, err error) error {
	kind := errx.Kind(err)
	st.Stage = model.StageFailed
	st.UpdatedAt = r.now()
	st.Failure = &model.StageFailure{Stage: stage, Kind: kind, Message: err.Error()}
	r.observer.ObserveStage(string(model.StageFailed))
	r.observer.ObserveFailure(string(stage), kind)
	logx.Error().Err(err).Str("session_id", st.SessionID).Str("stage", string(stage)).Str("kind", kind).Msg("pipeline failed")
	return &errx.StageError{Stage: string(stage), Err: err}
}

// recall fetches memory snippets related to the intake. Memory failures
// never block the pipeline.
func (r *Router) recall(ctx context.Context, st *model.PipelineState) []string {
	if r.memory == nil {
		return nil
	}
	query := memoryQuery(st.Intake)
	if query == "" {
		return nil
	}
	items, err := r.memory.Retrieve(ctx, query, r.retrievalK)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", st.SessionID).Str("kind", errx.Kind(err)).Msg("memory retrieval failed; continuing without memory")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Text)
	}
	return out
}

func (r *Router) remember(ctx context.Context, st *model.PipelineState, rs *model.ResearchSummary) {
	if r.memory == nil || rs == nil {
		return
	}
	text := memoryText(st.Intake, rs)
	if text == "" {
		return
	}
	id, err := r.memory.Put(ctx, text, map[string]string{
		"session_id": st.SessionID,
		"kind":       "research_summary",
	})
	if err != nil {
		logx.Warn().Err(err).Str("session_id", st.SessionID).Str("kind", errx.Kind(err)).Msg("memory write failed; continuing")
		return
	}
	logx.Debug().Str("session_id", st.SessionID).Str("memory_id", id).Msg("research summary stored")
}

// Forget drops the recorded dialogue of sessionID.
func (r *Router) Forget(ctx context.Context, sessionID string) error {
	if r.history == nil {
		return nil
	}
	return r.history.Clear(ctx, sessionID)
}

// HistoryLen returns the number of recorded dialogue messages of sessionID.
func (r *Router) HistoryLen(ctx context.Context, sessionID string) (int, error) {
	if r.history == nil {
		return 0, nil
	}
	return r.history.Count(ctx, sessionID)
}

func (r *Router) recentTurns(ctx context.Context, sessionID string) []invoke.Turn {
	if r.history == nil {
		return nil
	}
	turns, err := r.history.RecentTurns(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to load session history")
		return nil
	}
	return turns
}

func (r *Router) recordUser(ctx context.Context, sessionID, note string, payload any) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordUser(ctx, sessionID, withPayload(note, payload)); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record history")
	}
}

func (r *Router) recordAssistant(ctx context.Context, sessionID, note string, payload ...any) {
	if r.history == nil {
		return
	}
	var p any
	if len(payload) > 0 {
		p = payload[0]
	}
	if err := r.history.RecordAssistant(ctx, sessionID, withPayload(note, p)); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record history")
	}
}

func withPayload(note string, payload any) string {
	if payload == nil {
		return note
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return note
	}
	return note + ": " + string(b)
}

// memoryQuery joins the textual leaves of rec in schema order.
func memoryQuery(rec intake.Record) string {
	var parts []string
	for _, f := range intake.Schema() {
		v, ok := rec.Get(f.Path)
		if !ok || intake.IsEmpty(v) {
			continue
		}
		switch t := v.(type) {
		case string:
			parts = append(parts, t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func memoryText(rec intake.Record, rs *model.ResearchSummary) string {
	summary := strings.TrimSpace(fmt.Sprint(rs.SolutionSummary))
	if rs.SolutionSummary == nil || summary == "" {
		return ""
	}
	var who []string
	for _, key := range []string{"name", "industry"} {
		if v, ok := rec.Get(intake.FieldPath{string(intake.ClientProfile), key}); ok && !intake.IsEmpty(v) {
			who = append(who, fmt.Sprint(v))
		}
	}
	if len(who) == 0 {
		return summary
	}
	return strings.Join(who, ", ") + ": " + summary
}
