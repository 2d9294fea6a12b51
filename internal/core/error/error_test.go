package errx

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRedis(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))

	err := WrapRedis(redis.Nil)
	var app *AppError
	require.ErrorAs(t, err, &app)
	assert.Equal(t, http.StatusNotFound, app.Status)
	assert.ErrorIs(t, err, redis.Nil)

	err = WrapRedis(errors.New("conn refused"))
	require.ErrorAs(t, err, &app)
	assert.Equal(t, http.StatusBadGateway, app.Status)
}

func TestWrapRedisStore(t *testing.T) {
	cause := errors.New("boom")
	err := WrapRedisStore("put", cause)

	var store *MemoryStoreError
	require.ErrorAs(t, err, &store)
	assert.Equal(t, "put", store.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "memory_store", Kind(err))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"format", &IntakeFormatError{Reason: "not an object"}, "intake_format"},
		{"gaps", &ValidationGapError{Gaps: []string{"CII.ToolsRequired"}}, "validation_gap"},
		{"timeout", &AgentTimeoutError{Role: "research", Timeout: time.Second}, "agent_timeout"},
		{"output", &AgentOutputError{Role: "generation", Reason: "missing key"}, "agent_output"},
		{"wrapped output", &StageError{Stage: "GENERATING", Err: &AgentOutputError{Role: "generation"}}, "agent_output"},
		{"plain", errors.New("x"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestStatusAndSafeMessage(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Status(&IntakeFormatError{Reason: "bad"}))
	assert.Equal(t, http.StatusGatewayTimeout, Status(&StageError{Stage: "RESEARCHING", Err: &AgentTimeoutError{}}))
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("x")))

	assert.Equal(t, SystemErrorMessage, SafeMessage(errors.New("secret dsn in here")))
	assert.Equal(t, "stage GENERATING failed", SafeMessage(&StageError{Stage: "GENERATING", Err: errors.New("x")}))
	assert.Contains(t, SafeMessage(&IntakeFormatError{Reason: "unknown section", Keys: []string{"Foo"}}), "Foo")
}
