// Package queue hands API job ids to workers through a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pendingKey = "mediaforge:jobs:pending"

type Options struct {
	Addr     string
	PoolSize int
	// ConnectAttempts bounds the startup ping loop. Zero means 30.
	ConnectAttempts int
	Logger          zerolog.Logger
}

type Queue struct {
	client *redis.Client
	logger zerolog.Logger
}

func New(ctx context.Context, opts Options) (*Queue, error) {
	attempts := opts.ConnectAttempts
	if attempts <= 0 {
		attempts = 30
	}
	logger := opts.Logger.With().Str("component", "queue").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Int("max", attempts).Msg("redis not ready")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not ready after %d attempts: %w", attempts, err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return &Queue{client: client, logger: logger}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, pendingKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job id. It returns "" with a nil
// error when nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.client.BRPop(ctx, timeout, pendingKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("dequeue: %w", err)
	}
	if len(result) < 2 {
		return "", fmt.Errorf("dequeue: unexpected result length %d", len(result))
	}
	return result[1], nil
}

func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Requeue puts a job id at the head so it runs next.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, pendingKey, jobID).Err(); err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	return nil
}
