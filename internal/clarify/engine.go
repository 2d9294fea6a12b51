package clarify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/intakeflow/server/internal/intake"
)

// Engine turns validation gaps into questions and merges answers back.
type Engine struct {
	catalog Catalog
}

// NewEngine returns an engine using catalog for question wording.
func NewEngine(catalog Catalog) *Engine {
	if catalog.Fields == nil && catalog.Sections == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog}
}

// Questions builds one question per gap, in gap order.
func (e *Engine) Questions(gaps []intake.FieldPath) []Question {
	out := make([]Question, 0, len(gaps))
	for _, g := range gaps {
		entry := e.catalog.Lookup(g)
		out = append(out, Question{
			FieldPath: append(intake.FieldPath(nil), g...),
			Prompt:    entry.Prompt,
			Rationale: entry.Rationale,
			Options:   append([]string(nil), entry.Options...),
		})
	}
	return out
}

// Apply merges answer into a copy of rec at q's path and re-validates the
// whole record. The returned gaps are the fresh gap list.
func (e *Engine) Apply(rec intake.Record, q Question, answer string) (intake.Result, error) {
	value, err := Coerce(q.FieldPath, answer)
	if err != nil {
		return intake.Result{}, err
	}
	merged := rec.Clone()
	if merged == nil {
		merged = intake.Record{}
	}
	if err := merged.Set(q.FieldPath, value); err != nil {
		return intake.Result{}, fmt.Errorf("clarify: merge %s: %w", q.FieldPath, err)
	}
	return intake.Validate(merged)
}

// Coerce converts a free-text answer to the kind the schema expects at path.
// List answers are split on commas; numeric answers are parsed when they
// look like a number and kept as text otherwise.
func Coerce(path intake.FieldPath, answer string) (any, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	field, ok := intake.Lookup(path)
	if !ok {
		return answer, nil
	}
	switch field.Kind {
	case intake.KindList:
		var items []any
		for _, part := range strings.Split(answer, ",") {
			if p := strings.TrimSpace(part); p != "" {
				items = append(items, p)
			}
		}
		if len(items) == 0 {
			return nil, ErrEmptyAnswer
		}
		return items, nil
	case intake.KindNumber:
		cleaned := strings.NewReplacer(",", "", "$", "", "_", "").Replace(answer)
		if n, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return n, nil
		}
		return answer, nil
	default:
		return answer, nil
	}
}
