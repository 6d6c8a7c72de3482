package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashmvp/internal/models"
	"flashmvp/internal/queue"
)

func workerConfig() *queue.Config {
	cfg := queue.DefaultConfig("usage")
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	cfg.RetryBackoff = 5 * time.Millisecond
	return cfg
}

func TestUsageQueueWorker_DrainsQueueIntoLedger(t *testing.T) {
	db, mock := setupMockDB(t)
	cfg := workerConfig()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO usage_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := queue.NewMemoryQueue(cfg)
	dlq := queue.NewMemoryDeadLetterQueue()
	worker := NewUsageQueueWorker(q, dlq, db, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{
		Timestamp: "2026-08-27T10:00:00Z",
		Feature:   "ai-proxy",
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		Cost:      0.001,
	}))

	worker.Start(ctx)
	defer worker.Stop()

	// The worker batches on a 20ms timeout; give it a few rounds.
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond, "record was never written to the ledger")
}

func TestUsageQueueWorker_FailedRecordLandsInDLQ(t *testing.T) {
	db, mock := setupMockDB(t)
	cfg := workerConfig()

	// Batch insert fails, then the individual fallback fails through
	// all retries, parking the record in the DLQ.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin().WillReturnError(assert.AnError)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_records")).WillReturnError(assert.AnError)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_records")).WillReturnError(assert.AnError)

	q := queue.NewMemoryQueue(cfg)
	dlq := queue.NewMemoryDeadLetterQueue()
	worker := NewUsageQueueWorker(q, dlq, db, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{
		Feature:  "ai-proxy",
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
	}))

	worker.Start(ctx)
	defer worker.Stop()

	require.Eventually(t, func() bool {
		items, err := worker.DeadLetterItems(ctx, 0)
		return err == nil && len(items) == 1
	}, time.Second, 10*time.Millisecond, "record never reached the DLQ")
}

func TestUsageQueueWorker_StopDrainsPendingRecords(t *testing.T) {
	db, mock := setupMockDB(t)
	cfg := workerConfig()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	for i := 0; i < 2; i++ {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO usage_records")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	q := queue.NewMemoryQueue(cfg)
	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue(), db, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{Feature: "ai-proxy", Provider: "gemini", Model: "gemini-2.5-flash"}))
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{Feature: "chat", Provider: "openai", Model: "gpt-4o"}))

	worker.Start(ctx)
	// Stop blocks until the worker exits; queued records must be in
	// the ledger by then, whether the loop or the drain wrote them.
	require.NoError(t, worker.Stop())

	length, err := worker.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length, "queue must be empty after Stop")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageQueueWorker_QueueLength(t *testing.T) {
	db, _ := setupMockDB(t)
	cfg := workerConfig()

	q := queue.NewMemoryQueue(cfg)
	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue(), db, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{Feature: "a"}))
	require.NoError(t, worker.Enqueue(ctx, &models.UsageRecord{Feature: "b"}))

	length, err := worker.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length)
}
