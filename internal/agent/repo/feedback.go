package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/intakeflow/server/internal/agent/model"
	errx "github.com/intakeflow/server/internal/core/error"
	logx "github.com/intakeflow/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const feedbackKey = "feedback:log"

// RedisFeedbackLog appends confirmation decisions to a single Redis list.
type RedisFeedbackLog struct {
	rdb redis.Cmdable
}

func NewRedisFeedbackLog(rdb redis.Cmdable) *RedisFeedbackLog {
	return &RedisFeedbackLog{rdb: rdb}
}

func (l *RedisFeedbackLog) Append(ctx context.Context, fb model.Feedback) error {
	b, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if err := l.rdb.RPush(ctx, feedbackKey, b).Err(); err != nil {
		logx.Error().Err(err).Str("session_id", fb.SessionID).Msg("failed to append feedback")
		return errx.WrapRedis(err)
	}
	return nil
}

func (l *RedisFeedbackLog) List(ctx context.Context, sessionID string) ([]model.Feedback, error) {
	rows, err := l.rdb.LRange(ctx, feedbackKey, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, errx.WrapRedis(err)
	}
	var out []model.Feedback
	for _, row := range rows {
		var fb model.Feedback
		if err := json.Unmarshal([]byte(row), &fb); err != nil {
			logx.Warn().Err(err).Msg("skipping unreadable feedback entry")
			continue
		}
		if sessionID == "" || fb.SessionID == sessionID {
			out = append(out, fb)
		}
	}
	return out, nil
}

var _ model.FeedbackLog = (*RedisFeedbackLog)(nil)

type InMemoryFeedbackLog struct {
	mu      sync.Mutex
	entries []model.Feedback
}

func NewInMemoryFeedbackLog() *InMemoryFeedbackLog {
	return &InMemoryFeedbackLog{}
}

func (l *InMemoryFeedbackLog) Append(_ context.Context, fb model.Feedback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fb)
	return nil
}

func (l *InMemoryFeedbackLog) List(_ context.Context, sessionID string) ([]model.Feedback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Feedback
	for _, fb := range l.entries {
		if sessionID == "" || fb.SessionID == sessionID {
			out = append(out, fb)
		}
	}
	return out, nil
}

var _ model.FeedbackLog = (*InMemoryFeedbackLog)(nil)
