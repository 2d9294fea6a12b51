package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/intakeflow/server/internal/agent/llm"
	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/memory"
	"github.com/intakeflow/server/internal/memory/embed"
	"github.com/intakeflow/server/internal/memory/redisstore"
	"github.com/intakeflow/server/internal/memory/sqlstore"
	logx "github.com/intakeflow/server/pkg/logger"
	pkgredis "github.com/intakeflow/server/pkg/redis"
	"github.com/intakeflow/server/pkg/sqldb"
)

// MemoryConfig is the subset of Config the memory store is built from.
type MemoryConfig struct {
	Memory    memory.Config
	Embedding embed.Config
	LLM       model.LLMConfig
	Redis     pkgredis.Config
}

// OpenMemory builds the memory store. The backend follows the connection
// string: empty keeps items in process, redis:// and rediss:// use Redis,
// anything sqldb accepts uses SQL.
func OpenMemory(ctx context.Context, cfg MemoryConfig, obs memory.Observer) (*memory.Store, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, cfg.Embedding, embed.Keys{
		GeminiAPIKey:  cfg.LLM.GeminiAPIKey,
		GeminiBaseURL: cfg.LLM.GeminiBaseURL,
		OpenAIAPIKey:  cfg.LLM.OpenAIAPIKey,
	}, llm.NewGenAIClient)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	var opts []memory.Option
	if obs != nil {
		opts = append(opts, memory.WithObserver(obs))
	}
	return memory.NewStore(backend, embedder, cfg.Memory, opts...), nil
}

func openBackend(ctx context.Context, cfg MemoryConfig) (memory.Backend, error) {
	cs := strings.TrimSpace(cfg.Memory.ConnectionString)
	switch {
	case cs == "":
		logx.Debug().Msg("Memory store: in-process backend")
		return memory.NewInMemoryBackend(), nil
	case strings.HasPrefix(cs, "redis://"), strings.HasPrefix(cs, "rediss://"):
		client, err := pkgredis.Dial(ctx, cs, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect memory redis: %w", err)
		}
		logx.Debug().Str("collection", cfg.Memory.Collection).Msg("Memory store: redis backend")
		return redisstore.New(client, cfg.Memory.Collection), nil
	case sqldb.IsSQL(cs):
		b, err := sqlstore.Open(ctx, cs, cfg.Memory.Collection)
		if err != nil {
			return nil, fmt.Errorf("open memory database: %w", err)
		}
		logx.Debug().Str("collection", cfg.Memory.Collection).Msg("Memory store: sql backend")
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported memory connection string %q", redact(cs))
	}
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(cs string) string {
	if i := strings.Index(cs, "://"); i >= 0 {
		return cs[:i+3] + "..."
	}
	if len(cs) > 12 {
		return cs[:12] + "..."
	}
	return cs
}
