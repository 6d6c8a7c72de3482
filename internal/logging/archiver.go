package logging

import (
	"context"
	"sync"
	"time"

	"flashmvp/internal/models"
	"flashmvp/internal/utils"
)

// BatchWriter persists a batch of usage records somewhere durable and
// returns a location key for the written batch.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*models.UsageRecord) (string, error)
}

// Archiver buffers usage records in memory and flushes them to a
// BatchWriter when the buffer fills or the flush interval elapses. The
// ledger table stays the source of truth; the archive is a long-term
// copy of the immutable audit log.
type Archiver struct {
	writer        BatchWriter
	flushSize     int
	flushInterval time.Duration
	logger        *utils.Logger

	recordCh chan *models.UsageRecord
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewArchiver starts an archiver flushing to the given writer.
func NewArchiver(writer BatchWriter, bufferSize, flushSize int, flushInterval time.Duration) *Archiver {
	a := &Archiver{
		writer:        writer,
		flushSize:     flushSize,
		flushInterval: flushInterval,
		logger:        utils.NewLogger("archiver"),
		recordCh:      make(chan *models.UsageRecord, bufferSize),
		doneCh:        make(chan struct{}),
	}

	a.wg.Add(1)
	go a.run()

	return a
}

// Enqueue buffers a record for archival. When the buffer is full the
// record is dropped: archival is best-effort, the ledger write already
// succeeded.
func (a *Archiver) Enqueue(record *models.UsageRecord) {
	select {
	case a.recordCh <- record:
	default:
		a.logger.Warn("Archive buffer full, dropping record", "feature", record.Feature)
	}
}

func (a *Archiver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.UsageRecord, 0, a.flushSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		key, err := a.writer.WriteBatch(ctx, batch)
		cancel()
		if err != nil {
			a.logger.Error("Failed to flush archive batch", "count", len(batch), "error", err)
		} else {
			a.logger.Info("Flushed archive batch", "key", key, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record := <-a.recordCh:
			batch = append(batch, record)
			if len(batch) >= a.flushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.doneCh:
			// Drain whatever is still buffered, then flush once more.
			for {
				select {
				case record := <-a.recordCh:
					batch = append(batch, record)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Shutdown flushes remaining records and stops the archiver.
func (a *Archiver) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.doneCh)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
