// Package queue buffers usage records for asynchronous ledger writes.
// Two backends are provided: an in-memory channel queue for standalone
// deployments (nothing survives a restart) and a Redis list queue that
// persists across restarts and supports multiple workers. Failed items
// land in a dead-letter queue after the worker exhausts its retries.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO buffer of JSON-serializable items.
type Queue interface {
	// Enqueue adds an item to the queue.
	Enqueue(ctx context.Context, item interface{}) error

	// DequeueWithTimeout retrieves up to maxItems items, waiting at most
	// timeout for the first one. An empty slice means the timeout passed
	// with nothing queued.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue.
	Close() error
}

// DeadLetterQueue holds items that could not be processed.
type DeadLetterQueue interface {
	// Add records a failed item together with the error that killed it.
	Add(ctx context.Context, item interface{}, err error) error

	// List retrieves up to maxItems dead items; maxItems <= 0 means all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a dead item by id.
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue.
	Close() error
}

// DeadLetterItem is one entry in the dead letter queue.
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	Retries   int         `json:"retries"`
}

// Config holds queue and worker tuning.
type Config struct {
	// BatchSize is the maximum number of items a worker takes per batch.
	BatchSize int

	// BatchTimeout is how long a worker waits before processing a
	// partial batch.
	BatchTimeout time.Duration

	// MaxRetries is the number of retry attempts before an item moves
	// to the dead letter queue.
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles per attempt.
	RetryBackoff time.Duration

	// UseRedis selects the Redis backend over the in-memory one.
	UseRedis bool

	// RedisAddr, RedisPassword and RedisDB configure the Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QueueName namespaces the queue's keys.
	QueueName string
}

// DefaultConfig returns the default tuning for a named queue.
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}
