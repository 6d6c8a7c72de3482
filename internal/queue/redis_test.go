package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisQueue(t *testing.T) (*RedisQueue, *Config) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig("test")
	cfg.UseRedis = true
	cfg.RedisAddr = mr.Addr()

	q, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	return q, cfg
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	q, _ := setupRedisQueue(t)
	ctx := context.Background()

	type payload struct {
		Feature string  `json:"feature"`
		Cost    float64 `json:"cost"`
	}

	require.NoError(t, q.Enqueue(ctx, payload{Feature: "pdf-summarizer", Cost: 0.01}))
	require.NoError(t, q.Enqueue(ctx, payload{Feature: "chess-trainer", Cost: 0.02}))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length)

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var first payload
	raw, ok := items[0].(json.RawMessage)
	require.True(t, ok, "redis queue items should come back as json.RawMessage")
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.Equal(t, "pdf-summarizer", first.Feature)
	assert.Equal(t, 0.01, first.Cost)
}

func TestRedisQueue_DequeueRespectsBatchSize(t *testing.T) {
	q, _ := setupRedisQueue(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.DequeueWithTimeout(ctx, 4, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, length)
}

func TestRedisDeadLetterQueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultConfig("test")
	cfg.RedisAddr = mr.Addr()

	dlq, err := NewRedisDeadLetterQueue(cfg)
	require.NoError(t, err)
	defer dlq.Close()

	ctx := context.Background()
	require.NoError(t, dlq.Add(ctx, map[string]string{"feature": "x"}, errors.New("boom")))
	require.NoError(t, dlq.Add(ctx, map[string]string{"feature": "y"}, errors.New("boom")))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "boom", items[0].Error)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNewRedisQueue_BadAddress(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.RedisAddr = "127.0.0.1:1" // nothing listens here

	_, err := NewRedisQueue(cfg)
	assert.Error(t, err)
}
