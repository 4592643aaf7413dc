package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newspaper/internal/domain"
	"newspaper/internal/infra/metrics"
)

// RedisJobQueue реализует очередь задач на базе Redis lists.
// Полученная задача перекладывается в processing-список и удаляется оттуда при подтверждении.
type RedisJobQueue struct {
	client     *redis.Client
	key        string
	processing string
}

var _ domain.JobQueue = (*RedisJobQueue)(nil)

// NewRedisJobQueue создаёт очередь по указанному ключу.
func NewRedisJobQueue(client *redis.Client, key string) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key, processing: key + ":processing"}
}

// Enqueue публикует задачу в очередь.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisJobQueue) Receive(ctx context.Context) (domain.Job, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Job{}, nil, err
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.Job{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.Job{}, nil, err
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			// Битое сообщение не вернётся в очередь.
			_ = q.client.LRem(context.Background(), q.processing, 1, raw).Err()
			return domain.Job{}, nil, err
		}
		return job, q.ackFunc(raw), nil
	}
}

// Recover возвращает в очередь задачи, оставшиеся в processing после падения воркера.
func (q *RedisJobQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover jobs: %w", err)
		}
		moved++
	}
}

func (q *RedisJobQueue) ackFunc(raw string) domain.AckFunc {
	return func(success bool) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing, 1, raw)
		if !success {
			pipe.LPush(ctx, q.key, raw)
		}
		start := time.Now()
		_, err := pipe.Exec(ctx)
		metrics.ObserveNetworkRequest("redis", "ack", q.key, start, err)
		if err != nil {
			return fmt.Errorf("ack job: %w", err)
		}
		return nil
	}
}
