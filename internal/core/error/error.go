package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SQLErrorMessage describes SQL backend failures.
	SQLErrorMessage = "sql operation failed"
	// AgentErrorMessage is surfaced when an agent stage cannot complete.
	AgentErrorMessage = "agent invocation failed"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Status returns the HTTP-style status carried by err, or 500 when none is set.
func Status(err error) int {
	var app *AppError
	if errors.As(err, &app) && app.Status != 0 {
		return app.Status
	}
	var format *IntakeFormatError
	if errors.As(err, &format) {
		return http.StatusBadRequest
	}
	var gaps *ValidationGapError
	if errors.As(err, &gaps) {
		return http.StatusConflict
	}
	var timeout *AgentTimeoutError
	if errors.As(err, &timeout) {
		return http.StatusGatewayTimeout
	}
	var output *AgentOutputError
	if errors.As(err, &output) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// SafeMessage returns a message that can be shown to a caller without leaking internals.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var app *AppError
	if errors.As(err, &app) && app.Message != "" {
		return app.Message
	}
	var format *IntakeFormatError
	if errors.As(err, &format) {
		return format.Error()
	}
	var gaps *ValidationGapError
	if errors.As(err, &gaps) {
		return gaps.Error()
	}
	var stage *StageError
	if errors.As(err, &stage) {
		return fmt.Sprintf("stage %s failed", stage.Stage)
	}
	return SystemErrorMessage
}
