package errx

import (
	"fmt"
	"strings"
	"time"
)

// IntakeFormatError reports an intake document that is not a well-formed
// object of the known sections. It is never repaired.
type IntakeFormatError struct {
	Reason string
	Keys   []string
}

func (e *IntakeFormatError) Error() string {
	if len(e.Keys) == 0 {
		return "malformed intake: " + e.Reason
	}
	return fmt.Sprintf("malformed intake: %s: %s", e.Reason, strings.Join(e.Keys, ", "))
}

// ValidationGapError carries the field paths that still hold no usable data.
type ValidationGapError struct {
	Gaps []string
}

func (e *ValidationGapError) Error() string {
	return fmt.Sprintf("intake has %d unresolved field(s): %s", len(e.Gaps), strings.Join(e.Gaps, ", "))
}

// AgentOutputError reports an agent answer that violates the role contract.
type AgentOutputError struct {
	Role    string
	Reason  string
	Snippet string
}

func (e *AgentOutputError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s agent output invalid: %s", e.Role, e.Reason)
	}
	return fmt.Sprintf("%s agent output invalid: %s (got %q)", e.Role, e.Reason, e.Snippet)
}

// AgentTimeoutError reports an agent call that exceeded its deadline.
type AgentTimeoutError struct {
	Role    string
	Timeout time.Duration
	Err     error
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("%s agent timed out after %s", e.Role, e.Timeout)
}

func (e *AgentTimeoutError) Unwrap() error {
	return e.Err
}

// MemoryStoreError wraps a backend failure of the memory store.
type MemoryStoreError struct {
	Op  string
	Err error
}

func (e *MemoryStoreError) Error() string {
	return fmt.Sprintf("memory store %s: %v", e.Op, e.Err)
}

func (e *MemoryStoreError) Unwrap() error {
	return e.Err
}

// StageError names the pipeline stage at which a failure happened.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns a short classification of err used in failure records and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case as[*IntakeFormatError](err):
		return "intake_format"
	case as[*ValidationGapError](err):
		return "validation_gap"
	case as[*AgentTimeoutError](err):
		return "agent_timeout"
	case as[*AgentOutputError](err):
		return "agent_output"
	case as[*MemoryStoreError](err):
		return "memory_store"
	default:
		return "internal"
	}
}
