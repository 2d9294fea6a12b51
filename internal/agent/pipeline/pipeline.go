package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/intakeflow/server/internal/agent/conversations"
	"github.com/intakeflow/server/internal/agent/invoke"
	"github.com/intakeflow/server/internal/agent/llm"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/repo"
	"github.com/intakeflow/server/internal/agent/router"
	"github.com/intakeflow/server/internal/memory"
	"github.com/intakeflow/server/internal/memory/embed"
	"github.com/intakeflow/server/internal/metrics"
	"github.com/intakeflow/server/internal/tokens"
	logx "github.com/intakeflow/server/pkg/logger"
	pkgredis "github.com/intakeflow/server/pkg/redis"
)

// Config holds everything needed to compose the pipeline end-to-end.
type Config struct {
	LLM          model.LLMConfig
	Models       model.AgentModels
	Conversation model.ConversationConfig
	Pipeline     model.PipelineConfig
	Memory       memory.Config
	Embedding    embed.Config
	Redis        pkgredis.Config
}

func (c Config) memoryConfig() MemoryConfig {
	return MemoryConfig{Memory: c.Memory, Embedding: c.Embedding, LLM: c.LLM, Redis: c.Redis}
}

type Option func(*buildOptions)

type buildOptions struct {
	capability llm.Capability
	recorder   *metrics.Recorder
}

// WithCapability replaces the provider chosen by LLM_PROVIDER.
func WithCapability(c llm.Capability) Option {
	return func(o *buildOptions) { o.capability = c }
}

// WithRecorder shares an existing metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *buildOptions) { o.recorder = r }
}

// Pipeline is the wired set of components behind the CLI and MCP surfaces.
type Pipeline struct {
	Sessions *router.Sessions
	Router   *router.Router
	Memory   *memory.Store
	Metrics  *metrics.Recorder
	Feedback model.FeedbackLog

	rdb *redis.Client
}

// Build composes the memory store, agent capability, invoker, repositories
// and router. Session state and history live in Redis when REDIS_URL is set
// and in process otherwise.
func Build(ctx context.Context, cfg Config, opts ...Option) (*Pipeline, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	rec := o.recorder
	if rec == nil {
		rec = metrics.NewRecorder()
	}

	capability := o.capability
	if capability == nil {
		c, err := llm.New(ctx, cfg.LLM, cfg.Models, rec)
		if err != nil {
			return nil, fmt.Errorf("create agent capability: %w", err)
		}
		capability = c
	}

	store, err := OpenMemory(ctx, cfg.memoryConfig(), rec)
	if err != nil {
		return nil, err
	}

	counter, err := tokens.NewCounter()
	if err != nil {
		logx.Warn().Err(err).Msg("Tokenizer unavailable; falling back to character estimate")
	}

	invoker := invoke.NewInvoker(capability,
		invoke.WithTimeout(cfg.LLM.Timeout),
		invoke.WithTokenBudget(cfg.LLM.ContextTokenBudget),
		invoke.WithCounter(counter),
		invoke.WithCallObserver(rec),
	)

	p := &Pipeline{Memory: store, Metrics: rec}

	var (
		conversationRepo model.ConversationRepository
		sessionRepo      model.SessionRepository
	)
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		p.rdb = rdb
		conversationRepo = repo.NewRedisConversationRepository(rdb, cfg.Conversation.HistoryTTL, cfg.Conversation.MaxHistoryLength)
		sessionRepo = repo.NewRedisSessionRepository(rdb, cfg.Pipeline.SessionTTL)
		p.Feedback = repo.NewRedisFeedbackLog(rdb)
		logx.Debug().Msg("Session state and history in redis")
	} else {
		conversationRepo = repo.NewInMemoryConversationRepository(cfg.Conversation.MaxHistoryLength)
		sessionRepo = repo.NewInMemorySessionRepository()
		p.Feedback = repo.NewInMemoryFeedbackLog()
		logx.Debug().Msg("Session state and history in process")
	}

	p.Router = router.New(invoker,
		router.WithMemory(store, cfg.Memory.RetrievalK),
		router.WithHistory(conversations.NewMessagesManager(conversationRepo, cfg.Conversation)),
		router.WithFeedbackLog(p.Feedback),
		router.WithObserver(rec),
		router.WithSupervisorReview(cfg.Pipeline.SupervisorReview),
	)
	p.Sessions = router.NewSessions(p.Router, sessionRepo)

	logx.Debug().Msg("Pipeline built successfully")
	return p, nil
}

// Close releases the memory backend and the Redis connection.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Memory != nil {
		errs = append(errs, p.Memory.Close())
	}
	if p.rdb != nil {
		errs = append(errs, p.rdb.Close())
	}
	return errors.Join(errs...)
}
