package repo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryConversation_TrimsToMaxHistory(t *testing.T) {
	r := NewInMemoryConversationRepository(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.AddMessage(ctx, "s1", schema.UserMessage(fmt.Sprintf("m%d", i))))
	}

	h, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h.Messages, 3)
	assert.Equal(t, "m2", h.Messages[0].Content)
	assert.Equal(t, "m4", h.Messages[2].Content)

	n, err := r.GetMessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, r.ClearHistory(ctx, "s1"))
	n, _ = r.GetMessageCount(ctx, "s1")
	assert.Zero(t, n)
}

func TestInMemorySession_SaveLoadIsolated(t *testing.T) {
	r := NewInMemorySessionRepository()
	ctx := context.Background()

	_, err := r.Load(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	st := &model.PipelineState{SessionID: "s1", Stage: model.StageValidating}
	require.NoError(t, r.Save(ctx, st))
	st.Stage = model.StageFailed

	got, err := r.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StageValidating, got.Stage)

	require.NoError(t, r.Delete(ctx, "s1"))
	_, err = r.Load(ctx, "s1")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestInMemoryFeedback_FiltersBySession(t *testing.T) {
	l := NewInMemoryFeedbackLog()
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, model.Feedback{SessionID: "a", Approved: false, Comments: "fix revenue"}))
	require.NoError(t, l.Append(ctx, model.Feedback{SessionID: "b", Approved: true}))

	a, err := l.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "fix revenue", a[0].Comments)

	all, err := l.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisConversation_TrimsToMaxHistory(t *testing.T) {
	rdb := redisClient(t)
	r := NewRedisConversationRepository(rdb, time.Minute, 2)
	ctx := context.Background()
	id := uuid.NewString()
	defer r.ClearHistory(ctx, id)

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, r.AddMessage(ctx, id, schema.UserMessage(m)))
	}
	h, err := r.LoadHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, "two", h.Messages[0].Content)
}

func TestRedisSession_Roundtrip(t *testing.T) {
	rdb := redisClient(t)
	r := NewRedisSessionRepository(rdb, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()
	defer r.Delete(ctx, id)

	require.NoError(t, r.Save(ctx, &model.PipelineState{SessionID: id, Stage: model.StageValidated, Confirmed: true}))
	got, err := r.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageValidated, got.Stage)
	assert.True(t, got.Confirmed)
}
