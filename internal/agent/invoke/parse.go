package invoke

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/intakeflow/server/internal/agent/model"
	errx "github.com/intakeflow/server/internal/core/error"
	logx "github.com/intakeflow/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 256 * 1024 // 256KB
	maxErrSnippet = 200        // limit error snippet size
)

var (
	supervisorKeys = []string{"validated_intake", "clarification_questions"}
	researchKeys   = []string{"Highlights", "PainPoints", "CriticalRisks", "SolutionSummary", "WorkflowOutline", "AgentMap", "ToolHooks"}
	generationKeys = []string{"client_report", "developer_report"}
)

// ParseOutput turns raw agent text into the role's structured output. Any
// contract violation is reported as *errx.AgentOutputError.
func ParseOutput(role model.Role, content string) (out model.AgentOutput, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "output_parser").Str("role", string(role)).Msgf("panic recovered: %v", r)
			out = model.AgentOutput{}
			err = outputErr(role, "parser panic", content)
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "output_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("agent output rejected due to size limit")
		return model.AgentOutput{}, outputErr(role, "output too large", content)
	}
	if !utf8.ValidString(content) {
		return model.AgentOutput{}, outputErr(role, "output is not valid utf8", "")
	}

	body := StripFences(content)
	if body == "" {
		return model.AgentOutput{}, outputErr(role, "empty output", content)
	}
	if body[0] != '{' {
		return model.AgentOutput{}, outputErr(role, "output is not a JSON object", body)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return model.AgentOutput{}, outputErr(role, "invalid JSON: "+err.Error(), body)
	}

	out = model.AgentOutput{Role: role, Raw: body}
	switch role {
	case model.RoleSupervisor:
		out.Supervisor, err = parseSupervisor(fields, body)
	case model.RoleResearch:
		out.Research, err = parseResearch(fields, body)
	case model.RoleGeneration:
		out.Generation, err = parseGeneration(fields, body)
	default:
		err = fmt.Errorf("unknown agent role %q", role)
	}
	if err != nil {
		return model.AgentOutput{}, err
	}
	return out, nil
}

func parseSupervisor(fields map[string]json.RawMessage, body string) (*model.SupervisorOutput, error) {
	role := model.RoleSupervisor
	if extra := extraKeys(fields, supervisorKeys); len(extra) > 0 {
		return nil, outputErr(role, "unexpected keys: "+strings.Join(extra, ", "), body)
	}
	if err := requireKeys(role, fields, supervisorKeys, body); err != nil {
		return nil, err
	}
	if !isKind(fields["validated_intake"], '{') {
		return nil, outputErr(role, "validated_intake must be an object", body)
	}
	if !isKind(fields["clarification_questions"], '[') {
		return nil, outputErr(role, "clarification_questions must be an array", body)
	}

	var so model.SupervisorOutput
	if err := json.Unmarshal([]byte(body), &so); err != nil {
		return nil, outputErr(role, err.Error(), body)
	}
	return &so, nil
}

func parseResearch(fields map[string]json.RawMessage, body string) (*model.ResearchSummary, error) {
	if err := requireKeys(model.RoleResearch, fields, researchKeys, body); err != nil {
		return nil, err
	}
	var rs model.ResearchSummary
	if err := json.Unmarshal([]byte(body), &rs); err != nil {
		return nil, outputErr(model.RoleResearch, err.Error(), body)
	}
	return &rs, nil
}

func parseGeneration(fields map[string]json.RawMessage, body string) (*model.GenerationOutput, error) {
	if err := requireKeys(model.RoleGeneration, fields, generationKeys, body); err != nil {
		return nil, err
	}
	var g model.GenerationOutput
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return nil, outputErr(model.RoleGeneration, err.Error(), body)
	}
	return &g, nil
}

// StripFences removes markdown code fence lines around a model answer.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// requireKeys reports the first missing or null key of want.
func requireKeys(role model.Role, fields map[string]json.RawMessage, want []string, body string) error {
	var missing []string
	for _, k := range want {
		v, ok := fields[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return outputErr(role, "missing keys: "+strings.Join(missing, ", "), body)
	}
	return nil
}

func extraKeys(fields map[string]json.RawMessage, allowed []string) []string {
	var extra []string
	for k := range fields {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

func isKind(raw json.RawMessage, open byte) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == open
}

func outputErr(role model.Role, reason, content string) error {
	return &errx.AgentOutputError{Role: string(role), Reason: reason, Snippet: safeSnippet(content)}
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	s = s[:maxErrSnippet]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
