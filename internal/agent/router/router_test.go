package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intakeflow/server/internal/agent/conversations"
	"github.com/intakeflow/server/internal/agent/invoke"
	"github.com/intakeflow/server/internal/agent/llm"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/repo"
	"github.com/intakeflow/server/internal/clarify"
	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/intake"
	"github.com/intakeflow/server/internal/memory"
	logx "github.com/intakeflow/server/pkg/logger"
)

func init() {
	logx.Silence()
}

type agentMock struct {
	mock.Mock
}

func (m *agentMock) Invoke(ctx context.Context, role model.Role, actx invoke.AgentContext) (model.AgentOutput, error) {
	args := m.Called(ctx, role, actx)
	return args.Get(0).(model.AgentOutput), args.Error(1)
}

type agentFunc func(ctx context.Context, role model.Role, actx invoke.AgentContext) (model.AgentOutput, error)

func (f agentFunc) Invoke(ctx context.Context, role model.Role, actx invoke.AgentContext) (model.AgentOutput, error) {
	return f(ctx, role, actx)
}

type memoryMock struct {
	mock.Mock
}

func (m *memoryMock) Put(ctx context.Context, text string, meta map[string]string) (string, error) {
	args := m.Called(ctx, text, meta)
	return args.String(0), args.Error(1)
}

func (m *memoryMock) Retrieve(ctx context.Context, query string, k int) ([]memory.Item, error) {
	args := m.Called(ctx, query, k)
	items, _ := args.Get(0).([]memory.Item)
	return items, args.Error(1)
}

// intakeDoc builds a complete intake document without the given paths.
func intakeDoc(t *testing.T, missing ...string) map[string]any {
	t.Helper()
	skip := map[string]bool{}
	for _, m := range missing {
		skip[m] = true
	}
	rec := intake.Record{}
	for _, f := range intake.Schema() {
		if skip[f.Path.String()] {
			continue
		}
		var v any = "filled"
		switch f.Kind {
		case intake.KindNumber:
			v = float64(12)
		case intake.KindList:
			v = []any{"email"}
		}
		require.NoError(t, rec.Set(f.Path, v))
	}
	return rec.Map()
}

func researchOut() model.AgentOutput {
	return model.AgentOutput{Role: model.RoleResearch, Research: &model.ResearchSummary{
		Highlights:      []any{"fast growth"},
		SolutionSummary: "An intake agent and a follow-up agent.",
	}}
}

func generationOut() model.AgentOutput {
	return model.AgentOutput{Role: model.RoleGeneration, Generation: &model.GenerationOutput{
		ClientReport:    "# Client",
		DeveloperReport: "# Dev",
	}}
}

var industry = intake.FieldPath{"ClientProfile", "industry"}

func TestRouter_IndustryScenario(t *testing.T) {
	ctx := context.Background()
	agent := &agentMock{}
	feedback := repo.NewInMemoryFeedbackLog()
	r := New(agent, WithFeedbackLog(feedback))

	st, err := r.Start(ctx, "s1", intakeDoc(t, "ClientProfile.industry"))
	require.NoError(t, err)
	assert.Equal(t, model.StageAwaitingClarification, st.Stage)
	require.Len(t, st.Gaps, 1)
	assert.Equal(t, "ClientProfile.industry", st.Gaps[0].String())

	out := r.Output(st)
	require.Len(t, out.ClarificationQuestions, 1)
	assert.Equal(t, "Industry", out.ClarificationQuestions[0].Prompt)
	v, _ := out.ValidatedIntake.Get(industry)
	assert.Equal(t, intake.Sentinel, v)

	require.NoError(t, r.Answer(ctx, st, industry, "SaaS"))
	assert.Equal(t, model.StageValidating, st.Stage)
	assert.Empty(t, st.Gaps)
	assert.Empty(t, r.Output(st).ClarificationQuestions)
	v, _ = st.Intake.Get(industry)
	assert.Equal(t, "SaaS", v)
	require.Len(t, st.AnsweredQuestions, 1)

	// no confirmation yet: nothing runs
	err = r.Run(ctx, st)
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, model.StageValidating, st.Stage)
	agent.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, r.Confirm(ctx, st, model.Approval{Approved: true}))
	assert.Equal(t, model.StageValidated, st.Stage)
	assert.True(t, st.Confirmed)

	agent.On("Invoke", mock.Anything, model.RoleResearch, mock.MatchedBy(func(a invoke.AgentContext) bool {
		return a.Stage == model.StageResearching && a.Research == nil
	})).Return(researchOut(), nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleGeneration, mock.MatchedBy(func(a invoke.AgentContext) bool {
		return a.Stage == model.StageGenerating && a.Research != nil
	})).Return(generationOut(), nil).Once()

	require.NoError(t, r.Run(ctx, st))
	assert.Equal(t, model.StageComplete, st.Stage)
	assert.Equal(t, "# Client", st.AgentOutputs[model.RoleGeneration].Generation.ClientReport)
	assert.NotNil(t, st.AgentOutputs[model.RoleResearch].Research)
	agent.AssertExpectations(t)

	fbs, err := feedback.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.True(t, fbs[0].Approved)
}

func TestRouter_GeneratingUnreachableWithoutConfirmation(t *testing.T) {
	ctx := context.Background()
	agent := &agentMock{}
	r := New(agent)

	st, err := r.Start(ctx, "s1", intakeDoc(t))
	require.NoError(t, err)
	assert.Equal(t, model.StageValidating, st.Stage)

	require.ErrorIs(t, r.Run(ctx, st), ErrNotConfirmed)

	forced := st.Clone()
	forced.Stage = model.StageValidated
	require.ErrorIs(t, r.Run(ctx, forced), ErrNotConfirmed)
	assert.Equal(t, model.StageValidated, forced.Stage)

	gapped := st.Clone()
	gapped.Stage = model.StageValidated
	gapped.Confirmed = true
	gapped.Gaps = []intake.FieldPath{industry}
	var gapErr *errx.ValidationGapError
	require.ErrorAs(t, r.Run(ctx, gapped), &gapErr)
	assert.Equal(t, []string{"ClientProfile.industry"}, gapErr.Gaps)

	agent.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_ConfirmGuards(t *testing.T) {
	ctx := context.Background()
	r := New(&agentMock{})

	st, err := r.Start(ctx, "s1", intakeDoc(t, "SalesOps.crm"))
	require.NoError(t, err)
	require.ErrorIs(t, r.Confirm(ctx, st, model.Approval{Approved: true}), ErrInvalidTransition)

	gapped := st.Clone()
	gapped.Stage = model.StageValidating
	var gapErr *errx.ValidationGapError
	require.ErrorAs(t, r.Confirm(ctx, gapped, model.Approval{Approved: true}), &gapErr)
	assert.False(t, gapped.Confirmed)
}

func TestRouter_RejectionStaysValidating(t *testing.T) {
	ctx := context.Background()
	feedback := repo.NewInMemoryFeedbackLog()
	history := conversations.NewMessagesManager(repo.NewInMemoryConversationRepository(50), model.ConversationConfig{HistoryTurns: 10})
	r := New(&agentMock{}, WithFeedbackLog(feedback), WithHistory(history))

	st, err := r.Start(ctx, "s1", intakeDoc(t))
	require.NoError(t, err)
	require.NoError(t, r.Confirm(ctx, st, model.Approval{Approved: false, Comments: " revenue looks wrong "}))

	assert.Equal(t, model.StageValidating, st.Stage)
	assert.False(t, st.Confirmed)
	require.Len(t, st.Feedback, 1)
	assert.Equal(t, "revenue looks wrong", st.Feedback[0].Comments)

	fbs, _ := feedback.List(ctx, "s1")
	assert.Len(t, fbs, 1)
	turns, err := history.RecentTurns(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "intake rejected: revenue looks wrong", turns[len(turns)-1].Content)
}

func TestRouter_OutOfOrderAnswerLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	r := New(&agentMock{})

	st, err := r.Start(ctx, "s1", intakeDoc(t, "ClientProfile.industry", "SalesOps.crm"))
	require.NoError(t, err)
	before := st.Clone()

	err = r.Answer(ctx, st, intake.FieldPath{"SalesOps", "crm"}, "HubSpot")
	require.Error(t, err)
	assert.Equal(t, before, st)

	require.NoError(t, r.Answer(ctx, st, industry, "SaaS"))
	assert.Equal(t, model.StageAwaitingClarification, st.Stage)
	require.Len(t, st.PendingQuestions, 1)
	assert.Equal(t, "SalesOps.crm", st.PendingQuestions[0].FieldPath.String())
}

func TestRouter_SentinelAnswerKeepsGap(t *testing.T) {
	ctx := context.Background()
	r := New(&agentMock{})

	st, err := r.Start(ctx, "s1", intakeDoc(t, "ClientProfile.industry"))
	require.NoError(t, err)
	require.NoError(t, r.Answer(ctx, st, industry, intake.Sentinel))
	assert.Equal(t, model.StageAwaitingClarification, st.Stage)
	assert.Len(t, st.Gaps, 1)
}

func TestRouter_MalformedIntakeFails(t *testing.T) {
	r := New(&agentMock{})
	st, err := r.Start(context.Background(), "s1", map[string]any{"ReferenceDocs": "x"})

	var stageErr *errx.StageError
	require.ErrorAs(t, err, &stageErr)
	var fmtErr *errx.IntakeFormatError
	require.ErrorAs(t, err, &fmtErr)
	assert.Equal(t, model.StageFailed, st.Stage)
	require.NotNil(t, st.Failure)
	assert.Equal(t, model.StageIntakeReceived, st.Failure.Stage)
	assert.Equal(t, "intake_format", st.Failure.Kind)
}

func confirmed(t *testing.T, r *Router) *model.PipelineState {
	t.Helper()
	ctx := context.Background()
	st, err := r.Start(ctx, "s1", intakeDoc(t))
	require.NoError(t, err)
	require.NoError(t, r.Confirm(ctx, st, model.Approval{Approved: true}))
	return st
}

func TestRouter_MalformedAgentOutputTwiceFailsAtResearch(t *testing.T) {
	var calls atomic.Int32
	capability := llm.CapabilityFunc(func(context.Context, model.Role, []*schema.Message) (string, error) {
		calls.Add(1)
		return "Sure! Here is the summary you asked for.", nil
	})
	r := New(invoke.NewInvoker(capability))
	st := confirmed(t, r)

	err := r.Run(context.Background(), st)
	var stageErr *errx.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, string(model.StageResearching), stageErr.Stage)
	var outErr *errx.AgentOutputError
	require.ErrorAs(t, err, &outErr)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, model.StageFailed, st.Stage)
	require.NotNil(t, st.Failure)
	assert.Equal(t, model.StageResearching, st.Failure.Stage)
	assert.Equal(t, "agent_output", st.Failure.Kind)
	assert.Empty(t, st.AgentOutputs)
	assert.True(t, st.Confirmed)
}

func TestRouter_GenerationFailureKeepsResearch(t *testing.T) {
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleResearch, mock.Anything).Return(researchOut(), nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleGeneration, mock.Anything).
		Return(model.AgentOutput{}, &errx.AgentTimeoutError{Role: "generation", Timeout: time.Second}).Once()
	r := New(agent)
	st := confirmed(t, r)

	err := r.Run(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, model.StageFailed, st.Stage)
	assert.Equal(t, model.StageGenerating, st.Failure.Stage)
	assert.Equal(t, "agent_timeout", st.Failure.Kind)
	assert.Contains(t, st.AgentOutputs, model.RoleResearch)
	assert.NotContains(t, st.AgentOutputs, model.RoleGeneration)

	require.ErrorIs(t, r.Run(context.Background(), st), ErrInvalidTransition)
}

func TestRouter_MemoryFailureDoesNotBlock(t *testing.T) {
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleResearch, mock.MatchedBy(func(a invoke.AgentContext) bool {
		return len(a.Memory) == 0
	})).Return(researchOut(), nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleGeneration, mock.Anything).Return(generationOut(), nil).Once()

	mem := &memoryMock{}
	mem.On("Retrieve", mock.Anything, mock.Anything, 4).
		Return(nil, &errx.MemoryStoreError{Op: "list", Err: errors.New("connection refused")}).Once()
	mem.On("Put", mock.Anything, "filled, filled: An intake agent and a follow-up agent.", map[string]string{
		"session_id": "s1",
		"kind":       "research_summary",
	}).Return("", &errx.MemoryStoreError{Op: "insert", Err: errors.New("connection refused")}).Once()

	r := New(agent, WithMemory(mem, 4))
	st := confirmed(t, r)

	require.NoError(t, r.Run(context.Background(), st))
	assert.Equal(t, model.StageComplete, st.Stage)
	mem.AssertExpectations(t)
	agent.AssertExpectations(t)
}

func TestRouter_MemorySnippetsReachAgents(t *testing.T) {
	agent := &agentMock{}
	withMemory := mock.MatchedBy(func(a invoke.AgentContext) bool {
		return len(a.Memory) == 2 && a.Memory[0] == "first"
	})
	agent.On("Invoke", mock.Anything, model.RoleResearch, withMemory).Return(researchOut(), nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleGeneration, withMemory).Return(generationOut(), nil).Once()

	mem := &memoryMock{}
	mem.On("Retrieve", mock.Anything, mock.Anything, 6).Return([]memory.Item{{ID: "a", Text: "first"}, {ID: "b", Text: "second"}}, nil).Once()
	mem.On("Put", mock.Anything, mock.Anything, mock.Anything).Return("m1", nil).Once()

	r := New(agent, WithMemory(mem, 6))
	require.NoError(t, r.Run(context.Background(), confirmed(t, r)))
	agent.AssertExpectations(t)
}

func TestRouter_SupervisorReviewOnlyTouchesGapQuestions(t *testing.T) {
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleSupervisor, mock.Anything).Return(model.AgentOutput{
		Role: model.RoleSupervisor,
		Supervisor: &model.SupervisorOutput{
			ValidatedIntake: intake.Record{},
			ClarificationQuestions: []clarify.Question{
				{FieldPath: industry, Prompt: "What industry is your business in?", Rationale: "Shapes the agent roster."},
				{FieldPath: intake.FieldPath{"SalesOps", "crm"}, Prompt: "Which CRM?"},
			},
		},
	}, nil).Once()

	r := New(agent, WithSupervisorReview(true))
	st, err := r.Start(context.Background(), "s1", intakeDoc(t, "ClientProfile.industry"))
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingClarification, st.Stage)
	require.Len(t, st.PendingQuestions, 1)
	assert.Equal(t, "What industry is your business in?", st.PendingQuestions[0].Prompt)
	assert.Equal(t, "Shapes the agent roster.", st.PendingQuestions[0].Rationale)
	assert.Equal(t, "ClientProfile.industry", st.PendingQuestions[0].FieldPath.String())
	agent.AssertExpectations(t)
}

func TestRouter_SupervisorReviewFailureFails(t *testing.T) {
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleSupervisor, mock.Anything).
		Return(model.AgentOutput{}, &errx.AgentOutputError{Role: "supervisor", Reason: "invalid JSON"}).Once()

	r := New(agent, WithSupervisorReview(true))
	st, err := r.Start(context.Background(), "s1", intakeDoc(t, "ClientProfile.industry"))
	require.Error(t, err)
	assert.Equal(t, model.StageFailed, st.Stage)
	assert.Equal(t, model.StageValidating, st.Failure.Stage)
	assert.Empty(t, st.Intake)
	assert.Empty(t, st.Gaps)
}

func TestRouter_ReviewFailureOnAnswerKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleSupervisor, mock.Anything).Return(model.AgentOutput{
		Role:       model.RoleSupervisor,
		Supervisor: &model.SupervisorOutput{ValidatedIntake: intake.Record{}},
	}, nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleSupervisor, mock.Anything).
		Return(model.AgentOutput{}, &errx.AgentTimeoutError{Role: "supervisor", Timeout: time.Second}).Once()

	r := New(agent, WithSupervisorReview(true))
	st, err := r.Start(ctx, "s1", intakeDoc(t, "ClientProfile.industry", "ClientProfile.location"))
	require.NoError(t, err)
	require.Equal(t, model.StageAwaitingClarification, st.Stage)
	require.Len(t, st.Gaps, 2)
	before := st.Clone()

	sess := st.Clarification()
	q, ok := sess.Active()
	require.True(t, ok)

	err = r.Answer(ctx, st, q.FieldPath, "Retail")
	var stageErr *errx.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, model.StageFailed, st.Stage)
	assert.Equal(t, model.StageValidating, st.Failure.Stage)
	assert.Equal(t, before.Intake, st.Intake)
	assert.Equal(t, before.Gaps, st.Gaps)
	assert.Equal(t, before.PendingQuestions, st.PendingQuestions)
	assert.Empty(t, st.AnsweredQuestions)
	v, _ := st.Intake.Get(q.FieldPath)
	assert.NotEqual(t, "Retail", v)
	agent.AssertExpectations(t)
}

func TestSessions_FlowAndPersistence(t *testing.T) {
	ctx := context.Background()
	agent := &agentMock{}
	agent.On("Invoke", mock.Anything, model.RoleResearch, mock.Anything).Return(researchOut(), nil).Once()
	agent.On("Invoke", mock.Anything, model.RoleGeneration, mock.Anything).Return(generationOut(), nil).Once()
	store := repo.NewInMemorySessionRepository()
	r := New(agent)
	sessions := NewSessions(r, store)

	st, err := sessions.Start(ctx, intakeDoc(t, "ClientProfile.industry"))
	require.NoError(t, err)
	id := st.SessionID
	require.NotEmpty(t, id)

	_, err = sessions.Answer(ctx, id, industry, "SaaS")
	require.NoError(t, err)

	// a fresh registry over the same repository resumes the session
	resumed := NewSessions(r, store)
	st, err = resumed.Confirm(ctx, id, model.Approval{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, model.StageValidated, st.Stage)

	st, err = resumed.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageComplete, st.Stage)

	saved, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageComplete, saved.Stage)

	out, err := resumed.Output(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, out.ClarificationQuestions)

	_, err = resumed.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestSessions_ClearDropsSnapshotAndHistory(t *testing.T) {
	ctx := context.Background()
	store := repo.NewInMemorySessionRepository()
	convs := repo.NewInMemoryConversationRepository(20)
	mm := conversations.NewMessagesManager(convs, model.ConversationConfig{MaxHistoryLength: 20, HistoryTurns: 5})
	sessions := NewSessions(New(&agentMock{}, WithHistory(mm)), store)

	st, err := sessions.Start(ctx, intakeDoc(t, "ClientProfile.industry"))
	require.NoError(t, err)
	id := st.SessionID
	assert.False(t, st.Stage.Terminal())

	n, err := sessions.HistoryLen(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, sessions.Clear(ctx, id))

	_, err = sessions.Get(ctx, id)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	n, err = convs.GetMessageCount(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, sessions.Clear(ctx, id), model.ErrSessionNotFound)
	_, err = sessions.Answer(ctx, id, industry, "SaaS")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestSessions_SerializesTransitions(t *testing.T) {
	ctx := context.Background()
	var inFlight, maxInFlight, calls atomic.Int32
	agent := agentFunc(func(_ context.Context, role model.Role, _ invoke.AgentContext) (model.AgentOutput, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if role == model.RoleResearch {
			return researchOut(), nil
		}
		return generationOut(), nil
	})
	sessions := NewSessions(New(agent), nil)

	st, err := sessions.Start(ctx, intakeDoc(t))
	require.NoError(t, err)
	_, err = sessions.Confirm(ctx, st.SessionID, model.Approval{Approved: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.Run(ctx, st.SessionID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidTransition):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(3), rejected.Load())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxInFlight.Load())
}
