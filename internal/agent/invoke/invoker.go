// Package invoke calls one agent role with a deterministic context and turns
// its answer into a typed output.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"

	"github.com/intakeflow/server/internal/agent/llm"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/observers"
	"github.com/intakeflow/server/internal/agent/prompts"
	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/tokens"
	logx "github.com/intakeflow/server/pkg/logger"
)

const maxAttempts = 2

// CallObserver receives the outcome of every attempt.
type CallObserver interface {
	ObserveAgentCall(role string, d time.Duration, errorType string)
}

type nopCalls struct{}

func (nopCalls) ObserveAgentCall(string, time.Duration, string) {}

type Option func(*Invoker)

func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithTokenBudget caps the tokens spent on memory and history; 0 disables trimming.
func WithTokenBudget(n int) Option {
	return func(i *Invoker) { i.budget = n }
}

func WithCounter(c *tokens.Counter) Option {
	return func(i *Invoker) { i.counter = c }
}

func WithCallObserver(o CallObserver) Option {
	return func(i *Invoker) {
		if o != nil {
			i.calls = o
		}
	}
}

// WithPromptHandlers replaces the callbacks run around prompt rendering.
func WithPromptHandlers(hs ...callbacks.Handler) Option {
	return func(i *Invoker) { i.promptHandlers = hs }
}

type Invoker struct {
	capability llm.Capability
	counter    *tokens.Counter
	timeout    time.Duration
	budget     int
	calls      CallObserver

	promptHandlers []callbacks.Handler
}

func NewInvoker(capability llm.Capability, opts ...Option) *Invoker {
	i := &Invoker{
		capability: capability,
		timeout:    90 * time.Second,
		calls:      nopCalls{},

		promptHandlers: []callbacks.Handler{observers.NewPromptCallbacks()},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke runs role on actx. An unusable answer or a timeout is retried once;
// an unusable answer is sent back with a corrective instruction. The second
// failure is returned as *errx.AgentOutputError or *errx.AgentTimeoutError.
func (i *Invoker) Invoke(ctx context.Context, role model.Role, actx AgentContext) (model.AgentOutput, error) {
	if !role.Valid() {
		return model.AgentOutput{}, fmt.Errorf("unknown agent role %q", role)
	}

	rendered, err := Render(actx, i.counter, i.budget)
	if err != nil {
		return model.AgentOutput{}, err
	}
	pctx := callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      string(role),
		Type:      "IntakePrompt",
		Component: components.ComponentOfPrompt,
	}, i.promptHandlers...)
	msgs, err := prompts.Render(pctx, role, map[string]any{prompts.ContextVar: rendered})
	if err != nil {
		return model.AgentOutput{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		text, err := i.call(ctx, role, msgs)
		if err == nil {
			var out model.AgentOutput
			out, err = ParseOutput(role, text)
			if err == nil {
				i.calls.ObserveAgentCall(string(role), time.Since(start), "")
				logx.Debug().Str("session_id", actx.SessionID).Str("role", string(role)).Int("attempt", attempt).Msg("agent answered")
				return out, nil
			}
			if attempt < maxAttempts {
				correction, cerr := prompts.RenderCorrection(ctx, reason(err))
				if cerr != nil {
					return model.AgentOutput{}, cerr
				}
				msgs = append(append(msgs[:len(msgs):len(msgs)], schema.AssistantMessage(text, nil)), correction)
			}
		}

		kind := errx.Kind(err)
		i.calls.ObserveAgentCall(string(role), time.Since(start), kind)
		logx.Warn().Err(err).
			Str("session_id", actx.SessionID).
			Str("role", string(role)).
			Int("attempt", attempt).
			Str("kind", kind).
			Msg("agent attempt failed")

		var outErr *errx.AgentOutputError
		var toErr *errx.AgentTimeoutError
		if !errors.As(err, &outErr) && !errors.As(err, &toErr) {
			return model.AgentOutput{}, err
		}
		lastErr = err
	}
	return model.AgentOutput{}, lastErr
}

// call runs one capability call under the per-call deadline.
func (i *Invoker) call(ctx context.Context, role model.Role, msgs []*schema.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	text, err := i.capability.Invoke(callCtx, role, msgs)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
		return "", &errx.AgentTimeoutError{Role: string(role), Timeout: i.timeout, Err: err}
	}
	return "", fmt.Errorf("%s agent call: %w", role, err)
}

func reason(err error) string {
	var outErr *errx.AgentOutputError
	if errors.As(err, &outErr) {
		return outErr.Reason
	}
	return err.Error()
}
