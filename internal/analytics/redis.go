// Package analytics keeps windowed transition counters in Redis.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

type Config struct {
	Prefix    string
	Window    time.Duration
	Retention time.Duration
}

// RedisSink counts transition events per kind and outcome in time buckets.
type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	if config.Prefix == "" {
		config.Prefix = "tm"
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}
	return &RedisSink{client: client, config: config}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Record(ctx context.Context, event domain.TransitionEvent) error {
	key := buildKey(s.config.Prefix, event.Kind, event.Outcome, event.OccurredAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

// Count returns the counter for one bucket. Missing keys count as zero.
func (s *RedisSink) Count(ctx context.Context, kind domain.TransitionKind, outcome domain.TransitionOutcome, at time.Time) (int64, error) {
	n, err := s.client.Get(ctx, buildKey(s.config.Prefix, kind, outcome, at, s.config.Window)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func buildKey(prefix string, kind domain.TransitionKind, outcome domain.TransitionOutcome, t time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, kind, outcome, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
