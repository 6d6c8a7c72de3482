package logging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashmvp/internal/models"
)

type fakeBatchWriter struct {
	mu      sync.Mutex
	batches [][]*models.UsageRecord
}

func (f *fakeBatchWriter) WriteBatch(ctx context.Context, records []*models.UsageRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]*models.UsageRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return "fake/key.jsonl", nil
}

func (f *fakeBatchWriter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestArchiver_FlushesOnBatchSize(t *testing.T) {
	writer := &fakeBatchWriter{}
	archiver := NewArchiver(writer, 100, 3, time.Hour)
	defer archiver.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		archiver.Enqueue(&models.UsageRecord{Feature: "pdf-summarizer", Cost: 0.01})
	}

	require.Eventually(t, func() bool {
		return writer.total() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestArchiver_FlushesOnInterval(t *testing.T) {
	writer := &fakeBatchWriter{}
	archiver := NewArchiver(writer, 100, 1000, 30*time.Millisecond)
	defer archiver.Shutdown(context.Background())

	archiver.Enqueue(&models.UsageRecord{Feature: "chess-trainer", Cost: 0.02})

	require.Eventually(t, func() bool {
		return writer.total() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestArchiver_ShutdownDrainsBuffer(t *testing.T) {
	writer := &fakeBatchWriter{}
	archiver := NewArchiver(writer, 100, 1000, time.Hour)

	for i := 0; i < 5; i++ {
		archiver.Enqueue(&models.UsageRecord{Feature: "ielts-study", Cost: 0.005})
	}

	require.NoError(t, archiver.Shutdown(context.Background()))
	assert.Equal(t, 5, writer.total())

	// A second shutdown is a no-op.
	require.NoError(t, archiver.Shutdown(context.Background()))
}
