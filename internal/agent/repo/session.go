package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intakeflow/server/internal/agent/model"
	errx "github.com/intakeflow/server/internal/core/error"
	logx "github.com/intakeflow/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository stores pipeline state snapshots as JSON strings.
type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

func (r *RedisSessionRepository) Save(ctx context.Context, state *model.PipelineState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	key := r.sessionKey(state.SessionID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session state")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) Load(ctx context.Context, sessionID string) (*model.PipelineState, error) {
	key := r.sessionKey(sessionID)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session state")
		return nil, errx.WrapRedis(err)
	}
	var st model.PipelineState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &st, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.sessionKey(sessionID)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)

// InMemorySessionRepository keeps snapshots in process.
type InMemorySessionRepository struct {
	mu     sync.RWMutex
	states map[string]*model.PipelineState
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{states: make(map[string]*model.PipelineState)}
}

func (r *InMemorySessionRepository) Save(_ context.Context, state *model.PipelineState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.SessionID] = state.Clone()
	return nil
}

func (r *InMemorySessionRepository) Load(_ context.Context, sessionID string) (*model.PipelineState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return st.Clone(), nil
}

func (r *InMemorySessionRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, sessionID)
	return nil
}

var _ model.SessionRepository = (*InMemorySessionRepository)(nil)
