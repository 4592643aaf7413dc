package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRedisBackend(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q, closeFn, err := Open("", client, "", "jobs")
	require.NoError(t, err)
	assert.IsType(t, &RedisJobQueue{}, q)
	assert.NoError(t, closeFn())
}

func TestOpenErrors(t *testing.T) {
	_, _, err := Open(BackendRedis, nil, "", "jobs")
	assert.Error(t, err)

	_, _, err = Open(BackendRabbitMQ, nil, "", "jobs")
	assert.Error(t, err)

	_, _, err = Open("kafka", nil, "", "jobs")
	assert.ErrorContains(t, err, "unknown queue backend")
}
