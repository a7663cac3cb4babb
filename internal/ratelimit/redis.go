package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisSlidingWindow applies the same sliding window as SlidingWindow, but
// keeps each client's history in a Redis sorted set so several ingest
// processes share one quota per client.
type RedisSlidingWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedisSlidingWindow creates a Redis-backed limiter.
func NewRedisSlidingWindow(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		client: client,
		limit:  limit,
		window: window,
		logger: logger.With("component", "redis_rate_limiter"),
	}
}

// Admit records now and counts the client's submissions inside the window.
// The add, prune and count run in one MULTI/EXEC so concurrent ingest
// processes cannot both slip under the limit. If Redis fails the submission
// is admitted.
func (r *RedisSlidingWindow) Admit(ctx context.Context, clientID string, now time.Time) bool {
	key := windowKey(clientID)
	var card *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoffScore(now, r.window))
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		r.logger.Error("rate limit check failed, admitting request", "client", clientID, "error", err)
		return true
	}
	return card.Val() <= int64(r.limit)
}

func windowKey(clientID string) string {
	return redisKeyPrefix + clientID
}

// cutoffScore is the inclusive upper bound of scores that have aged out:
// an entry at t is dropped once now-t >= window.
func cutoffScore(now time.Time, window time.Duration) string {
	return strconv.FormatInt(now.UnixMicro()-window.Microseconds(), 10)
}

func (r *RedisSlidingWindow) String() string {
	return fmt.Sprintf("redis sliding window (%d per %s)", r.limit, r.window)
}
