package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/memory"
	logx "github.com/intakeflow/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Backend stores memory items as Redis hashes indexed by a sorted set of ids
// scored by creation time.
type Backend struct {
	rdb        redis.UniversalClient
	collection string
}

var _ memory.Backend = (*Backend)(nil)

func New(rdb redis.UniversalClient, collection string) *Backend {
	return &Backend{rdb: rdb, collection: collection}
}

func (b *Backend) indexKey() string {
	return fmt.Sprintf("memory:%s:ids", b.collection)
}

func (b *Backend) itemKey(id string) string {
	return fmt.Sprintf("memory:%s:item:%s", b.collection, id)
}

func (b *Backend) Insert(ctx context.Context, item memory.Item) error {
	vec, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	key := b.itemKey(item.ID)
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"text", item.Text,
			"embedding", vec,
			"metadata", meta,
			"created_at", item.CreatedAt.UTC().Format(time.RFC3339Nano),
			"last_accessed_at", item.LastAccessedAt.UTC().Format(time.RFC3339Nano),
			"relevance_score", item.RelevanceScore,
		)
		pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(item.CreatedAt.UnixMilli()), Member: item.ID})
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to insert memory item")
		return errx.WrapRedisStore("put", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]memory.Item, error) {
	ids, err := b.rdb.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("key", b.indexKey()).Msg("failed to list memory ids")
		return nil, errx.WrapRedisStore("list", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, b.itemKey(id))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Msg("failed to load memory items")
		return nil, errx.WrapRedisStore("list", err)
	}

	out := make([]memory.Item, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		item, err := decode(ids[i], fields)
		if err != nil {
			logx.Warn().Err(err).Str("memory_id", ids[i]).Msg("skipping unreadable memory item")
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = b.itemKey(id)
		members[i] = id
	}

	var removed *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		removed = pipe.ZRem(ctx, b.indexKey(), members...)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Int("count", len(ids)).Msg("failed to delete memory items")
		return 0, errx.WrapRedisStore("evict", err)
	}
	return int(removed.Val()), nil
}

// touchScript updates access fields only while the item hash still exists,
// so an item evicted by another session is not recreated as a partial hash.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[1], 'relevance_score', ARGV[2])
	return 1
end
return 0
`)

func (b *Backend) Touch(ctx context.Context, accesses []memory.Access) error {
	if len(accesses) == 0 {
		return nil
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range accesses {
			touchScript.Eval(ctx, pipe, []string{b.itemKey(a.ID)},
				a.At.UTC().Format(time.RFC3339Nano),
				strconv.FormatFloat(a.Score, 'g', -1, 64),
			)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Int("count", len(accesses)).Msg("failed to update memory access")
		return errx.WrapRedisStore("touch", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.rdb.Close()
}

func decode(id string, fields map[string]string) (memory.Item, error) {
	item := memory.Item{ID: id, Text: fields["text"]}
	created, ok := fields["created_at"]
	if !ok {
		return item, fmt.Errorf("missing created_at")
	}
	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return item, fmt.Errorf("parse created_at: %w", err)
	}
	if v := fields["last_accessed_at"]; v != "" {
		if item.LastAccessedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return item, fmt.Errorf("parse last_accessed_at: %w", err)
		}
	}
	if v := fields["relevance_score"]; v != "" {
		if item.RelevanceScore, err = strconv.ParseFloat(v, 64); err != nil {
			return item, fmt.Errorf("parse relevance_score: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(fields["embedding"]), &item.Embedding); err != nil {
		return item, fmt.Errorf("unmarshal embedding: %w", err)
	}
	if v := fields["metadata"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &item.Metadata); err != nil {
			return item, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return item, nil
}
