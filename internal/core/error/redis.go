package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to an AppError with an appropriate status code.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapRedisStore wraps a Redis failure of a memory store operation.
func WrapRedisStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryStoreError{Op: op, Err: WrapRedis(err)}
}
