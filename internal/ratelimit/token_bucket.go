// Package ratelimit implements a token bucket shared through Redis.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "pixelkit:ratelimit"
	anonymousSubject = "anonymous"
)

//go:embed token_bucket.lua
var tokenBucketLua string

var tokenBucketScript = redis.NewScript(tokenBucketLua)

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// RedisTokenBucket keeps one bucket per subject in Redis so every API
// replica draws from the same budget. Each Allow costs one token.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	keyPrefix   string
	now         func() time.Time
}

// NewFromConfig dials the queue's Redis and builds a bucket from the rate
// limit settings. The caller owns the returned client.
func NewFromConfig(rl config.RateLimitConfig, q config.QueueConfig) (*RedisTokenBucket, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	})
	bucket, err := NewRedisTokenBucket(client, rl.Capacity, rl.Window, defaultKeyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return bucket, client, nil
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive")
	case window <= 0:
		return nil, fmt.Errorf("window must be positive")
	}

	keyPrefix = strings.TrimRight(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(max(1, window.Milliseconds())),
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

func (l *RedisTokenBucket) Limit() int64 {
	return l.capacity
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	key := l.keyPrefix + ":" + normalizeSubject(subject)
	reply, err := tokenBucketScript.Run(
		ctx,
		l.client,
		[]string{key},
		l.capacity,
		l.refillPerMS,
		l.now().UnixMilli(),
		1,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("token bucket %s: expected 3 values, got %d", key, len(reply))
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Limit:      l.capacity,
		Remaining:  reply[1],
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// Subject scopes a caller's budget to one route.
func Subject(callerID, route string) string {
	return normalizeSubject(callerID) + ":" + route
}

func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return anonymousSubject
	}
	return subject
}
