package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/metrics"
)

// Outcome labels for the dataset counter.
const (
	statusWritten = "written"
	statusFailed  = "failed"
	statusDropped = "dropped"
)

// AsyncRecorder hands phrase mappings to a background writer. Record never
// blocks: when the buffer is full the batch is dropped and logged.
type AsyncRecorder struct {
	store   Store
	timeout time.Duration
	log     *logrus.Logger

	queue chan []domain.PhraseMappingRecord
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncRecorder starts the writer goroutine. Close must be called to
// flush pending batches.
func NewAsyncRecorder(store Store, bufferSize int, timeout time.Duration, logger *logrus.Logger) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	r := &AsyncRecorder{
		store:   store,
		timeout: timeout,
		log:     logger,
		queue:   make(chan []domain.PhraseMappingRecord, bufferSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues one batch.
func (r *AsyncRecorder) Record(records ...domain.PhraseMappingRecord) {
	if len(records) == 0 {
		return
	}
	batch := make([]domain.PhraseMappingRecord, len(records))
	copy(batch, records)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.CountDataset(statusDropped, len(batch))
		return
	}

	select {
	case r.queue <- batch:
	default:
		metrics.CountDataset(statusDropped, len(batch))
		r.log.WithField("records", len(batch)).Warn("Dataset buffer full, dropping phrase mappings")
	}
}

func (r *AsyncRecorder) run() {
	defer r.wg.Done()
	for batch := range r.queue {
		r.write(batch)
	}
}

func (r *AsyncRecorder) write(batch []domain.PhraseMappingRecord) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.store.Append(ctx, batch); err != nil {
		metrics.CountDataset(statusFailed, len(batch))
		r.log.WithFields(logrus.Fields{
			"records": len(batch),
			"error":   err,
		}).Warn("Failed to write phrase mappings")
		return
	}
	metrics.CountDataset(statusWritten, len(batch))
}

// Close stops accepting records, drains the queue and waits for the writer.
// The store itself is left open.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

var _ domain.PhraseRecorder = (*AsyncRecorder)(nil)
