// Package cache constructs the shared Redis client.
package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client for addr. Callers decide whether a failed
// ping is fatal; the API treats the cache as optional, the worker does not.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
