package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis carries the client backing the audit queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects with short timeouts. Audit publishing is fire-and-forget,
// so a slow broker should fail the publish fast rather than stall a request.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MinIdleConns: 1,
	})
	return &Redis{Client: client}
}

// Healthy verifies broker connectivity, used by the health endpoint.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
