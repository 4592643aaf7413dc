package queue

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"newspaper/internal/domain"
)

const (
	// BackendRedis: очередь на списках Redis.
	BackendRedis = "redis"
	// BackendRabbitMQ: очередь RabbitMQ.
	BackendRabbitMQ = "rabbitmq"
)

// Open выбирает реализацию очереди. Возвращаемая функция закрывает соединения очереди.
func Open(backend string, client *redis.Client, rabbitURL, key string) (domain.JobQueue, func() error, error) {
	switch backend {
	case "", BackendRedis:
		if client == nil {
			return nil, nil, errors.New("redis queue: REDIS_ADDR is not set")
		}
		return NewRedisJobQueue(client, key), func() error { return nil }, nil
	case BackendRabbitMQ:
		if rabbitURL == "" {
			return nil, nil, errors.New("rabbitmq queue: RABBITMQ_URL is not set")
		}
		q, err := NewRabbitJobQueue(rabbitURL, key)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}
