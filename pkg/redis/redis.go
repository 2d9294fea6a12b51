package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Enabled reports whether a Redis URL was configured.
func (r *Config) Enabled() bool {
	return r.URL != ""
}

// New parses the URL, applies the timeouts and pings the server.
func (r *Config) New(ctx context.Context) (*redis.Client, error) {
	return Dial(ctx, r.URL, r)
}

func (r *Config) MustNew(ctx context.Context) *redis.Client {
	client, err := r.New(ctx)
	if err != nil {
		panic(err)
	}

	return client
}

// Dial connects to url using the timeouts of cfg. The memory store uses it with
// its own connection string while sharing the Redis timeouts.
func Dial(ctx context.Context, url string, cfg *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	if cfg != nil {
		opts.ReadTimeout = time.Duration(cfg.ReadTimeout) * time.Second
		opts.WriteTimeout = time.Duration(cfg.WriteTimeout) * time.Second
		opts.DialTimeout = time.Duration(cfg.DialTimeout) * time.Second
	}

	client := redis.NewClient(opts)

	cmd := client.Ping(ctx)
	if cmd.Err() != nil {
		_ = client.Close()
		return nil, cmd.Err()
	}

	return client, nil
}
