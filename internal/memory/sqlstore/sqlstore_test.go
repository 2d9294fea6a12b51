package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/intakeflow/server/internal/memory"
	"github.com/intakeflow/server/pkg/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(context.Background(), ":memory:", "ai_pipeline_memory")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew_RejectsBadCollectionNames(t *testing.T) {
	db, dialect, err := sqldb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = New(context.Background(), db, dialect, "drop table; --")
	assert.Error(t, err)

	b, err := New(context.Background(), db, dialect, "pipeline-memory")
	require.NoError(t, err)
	assert.Equal(t, "pipeline_memory", b.table)

	// migration is idempotent
	_, err = New(context.Background(), db, dialect, "pipeline-memory")
	require.NoError(t, err)
}

func TestBackend_InsertListTouchDelete(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, b.Insert(ctx, memory.Item{
		ID: "a", Text: "alpha", Embedding: []float32{1, 0.5},
		Metadata: map[string]string{"session_id": "s1"}, CreatedAt: created, LastAccessedAt: created,
	}))
	require.NoError(t, b.Insert(ctx, memory.Item{
		ID: "b", Text: "beta", Embedding: []float32{0, 1}, CreatedAt: created, LastAccessedAt: created,
	}))

	// ids are unique
	assert.Error(t, b.Insert(ctx, memory.Item{ID: "a", Text: "dup", CreatedAt: created, LastAccessedAt: created}))

	items, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byID := map[string]memory.Item{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.Equal(t, []float32{1, 0.5}, byID["a"].Embedding)
	assert.Equal(t, "s1", byID["a"].Metadata["session_id"])
	assert.True(t, created.Equal(byID["a"].CreatedAt))
	assert.Nil(t, byID["b"].Metadata)

	later := created.Add(time.Hour)
	require.NoError(t, b.Touch(ctx, []memory.Access{{ID: "a", At: later, Score: 0.75}, {ID: "gone", At: later}}))

	n, err := b.Delete(ctx, "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err = b.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, later.Equal(items[0].LastAccessedAt))
	assert.Equal(t, 0.75, items[0].RelevanceScore)
}

func TestBackend_WithStore(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s := memory.NewStore(b, memory.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		if text == "query" || text == "match" {
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	}), memory.DefaultConfig(),
		memory.WithClock(func() time.Time { return now }),
		memory.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)

	_, err := s.Put(ctx, "other", nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "match", nil)
	require.NoError(t, err)

	got, err := s.Retrieve(ctx, "query", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "match", got[0].Text)
}
