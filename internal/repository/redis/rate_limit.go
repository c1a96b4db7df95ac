package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/josemoyano04/user-manager/internal/core/port"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL bounds how long an idle key survives; it should be at least the longest window.
	TTL time.Duration
}

// RateLimitRepository keeps one sorted set per key, scored by attempt time in nanoseconds.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Window trims expired attempts and reads the count and the oldest survivor in one round trip.
func (r *RateLimitRepository) Window(ctx context.Context, key string, window time.Duration, now time.Time) (port.AttemptWindow, error) {
	if window <= 0 {
		return port.AttemptWindow{}, errors.New("window must be positive")
	}

	k := r.key(key)
	threshold := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+threshold)
		card = pipe.ZCard(ctx, k)
		oldest = pipe.ZRangeWithScores(ctx, k, 0, 0)
		return nil
	})
	if err != nil {
		return port.AttemptWindow{}, fmt.Errorf("redis sliding window %s: %w", k, err)
	}

	w := port.AttemptWindow{Count: int(card.Val())}
	if entries := oldest.Val(); len(entries) > 0 {
		w.Oldest = time.Unix(0, int64(entries[0].Score))
	}
	return w, nil
}

// Record adds an attempt. Members carry a random suffix so attempts in the same
// nanosecond are all counted.
func (r *RateLimitRepository) Record(ctx context.Context, key string, at time.Time) error {
	k := r.key(key)
	member := redis.Z{
		Score:  float64(at.UnixNano()),
		Member: strconv.FormatInt(at.UnixNano(), 10) + ":" + uuid.NewString(),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, k, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt %s: %w", k, err)
	}
	return nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
