package clarify

import (
	"testing"

	"github.com/intakeflow/server/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gapRecord(t *testing.T, missing ...string) intake.Result {
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
			v = float64(10)
		case intake.KindList:
			v = []any{"x"}
		}
		require.NoError(t, rec.Set(f.Path, v))
	}
	res, err := intake.Validate(rec)
	require.NoError(t, err)
	return res
}

func TestQuestions_UseCatalogWording(t *testing.T) {
	e := NewEngine(Catalog{})
	qs := e.Questions([]intake.FieldPath{{"ClientProfile", "industry"}, {"CII", "Latency", "Async"}})

	require.Len(t, qs, 2)
	assert.Equal(t, "Industry", qs[0].Prompt)
	assert.Contains(t, qs[0].Options, "Med Spa")
	assert.NotEmpty(t, qs[0].Rationale)
	assert.Equal(t, "Which can run in background or off-hours?", qs[1].Prompt)
	assert.False(t, qs[0].Answered)
}

func TestQuestions_UnknownPathGetsGenericPrompt(t *testing.T) {
	e := NewEngine(DefaultCatalog())
	qs := e.Questions([]intake.FieldPath{{"HAF", "Escalation"}})
	require.Len(t, qs, 1)
	assert.Equal(t, "Please provide HAF.Escalation:", qs[0].Prompt)
	assert.Equal(t, DefaultCatalog().Sections[intake.HAF], qs[0].Rationale)
}

func TestSession_RejectsOutOfOrderAnswers(t *testing.T) {
	e := NewEngine(DefaultCatalog())
	s := &Session{Pending: e.Questions([]intake.FieldPath{{"SalesOps", "crm"}, {"Marketing", "routing"}})}

	_, err := s.Answer(intake.FieldPath{"Marketing", "routing"}, "owner")
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Len(t, s.Pending, 2)
	assert.Empty(t, s.Answered)

	_, err = s.Answer(intake.FieldPath{"SalesOps", "crm"}, "   ")
	require.ErrorIs(t, err, ErrEmptyAnswer)

	q, err := s.Answer(intake.FieldPath{"SalesOps", "crm"}, " HubSpot ")
	require.NoError(t, err)
	assert.True(t, q.Answered)
	require.NotNil(t, q.Answer)
	assert.Equal(t, "HubSpot", *q.Answer)

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "Marketing.routing", active.FieldPath.String())

	_, err = s.Answer(intake.FieldPath{"Marketing", "routing"}, "owner")
	require.NoError(t, err)
	assert.True(t, s.Done())

	_, err = s.Answer(intake.FieldPath{"Marketing", "routing"}, "again")
	assert.ErrorIs(t, err, ErrNoPendingQuestion)
}

func TestApply_IndustryScenario(t *testing.T) {
	res := gapRecord(t, "ClientProfile.industry")
	require.Len(t, res.Gaps, 1)

	e := NewEngine(DefaultCatalog())
	s := &Session{Pending: e.Questions(res.Gaps)}
	q, err := s.Answer(res.Gaps[0], "SaaS")
	require.NoError(t, err)

	next, err := e.Apply(res.Record, q, *q.Answer)
	require.NoError(t, err)
	assert.Empty(t, next.Gaps)
	assert.Equal(t, "SaaS", next.Record[intake.ClientProfile]["industry"])

	s.Refresh(e.Questions(next.Gaps))
	assert.True(t, s.Done())
	assert.Len(t, s.Answered, 1)

	// the original record is untouched
	assert.Equal(t, intake.Sentinel, res.Record[intake.ClientProfile]["industry"])
}

func TestApply_ReportsRemainingGaps(t *testing.T) {
	res := gapRecord(t, "SalesOps.crm", "HAF.KeyWorkflows")
	e := NewEngine(DefaultCatalog())

	q := e.Questions(res.Gaps)[0]
	next, err := e.Apply(res.Record, q, "Pipedrive")
	require.NoError(t, err)
	assert.Equal(t, []string{"HAF.KeyWorkflows"}, intake.Strings(next.Gaps))
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(intake.FieldPath{"Marketing", "channels"}, "SEO, Referral ,, Events")
	require.NoError(t, err)
	assert.Equal(t, []any{"SEO", "Referral", "Events"}, v)

	v, err = Coerce(intake.FieldPath{"ClientProfile", "revenue"}, "$1,250,000")
	require.NoError(t, err)
	assert.Equal(t, 1250000.0, v)

	v, err = Coerce(intake.FieldPath{"Retention", "sales_cycle"}, "about a month")
	require.NoError(t, err)
	assert.Equal(t, "about a month", v)

	_, err = Coerce(intake.FieldPath{"Marketing", "channels"}, " , ,")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestSession_RefreshKeepsOverriddenWording(t *testing.T) {
	e := NewEngine(DefaultCatalog())
	s := &Session{Pending: e.Questions([]intake.FieldPath{{"SalesOps", "crm"}})}
	s.Pending[0].Prompt = "Which CRM holds your customer list?"

	s.Refresh(e.Questions([]intake.FieldPath{{"SalesOps", "crm"}, {"SalesOps", "booking"}}))
	require.Len(t, s.Pending, 2)
	assert.Equal(t, "Which CRM holds your customer list?", s.Pending[0].Prompt)
	assert.Equal(t, "How are appointments currently booked?", s.Pending[1].Prompt)
}

func TestSession_CloneIsDeep(t *testing.T) {
	a := "HubSpot"
	s := Session{Answered: []Question{{FieldPath: intake.FieldPath{"SalesOps", "crm"}, Answered: true, Answer: &a}}}
	c := s.Clone()
	*c.Answered[0].Answer = "Pipedrive"
	c.Answered[0].FieldPath[1] = "booking"
	assert.Equal(t, "HubSpot", *s.Answered[0].Answer)
	assert.Equal(t, "crm", s.Answered[0].FieldPath[1])
}
