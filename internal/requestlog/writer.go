// Package requestlog persists served requests off the request path.
package requestlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/pkg/logger"
)

const (
	defaultBuffer = 1024
	batchSize     = 100
	flushInterval = time.Second
	flushTimeout  = 5 * time.Second
)

// Writer queues request logs on a bounded channel drained by a single goroutine.
// Entries that do not fit are dropped and counted.
type Writer struct {
	logger *logger.Logger
	repo   models.RequestLogRepository

	mu      sync.RWMutex
	closed  bool
	entries chan *models.RequestLog
	dropped atomic.Int64
	wg      sync.WaitGroup
}

func NewWriter(repo models.RequestLogRepository, buffer int, logger *logger.Logger) *Writer {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Writer{
		logger:  logger,
		repo:    repo,
		entries: make(chan *models.RequestLog, buffer),
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop stops accepting entries and waits until the queue is flushed.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()
	w.wg.Wait()
	if n := w.dropped.Load(); n > 0 {
		w.logger.Warn("Request logs dropped", "count", n)
	}
}

// Record enqueues entry without blocking. It reports false when the entry was dropped.
func (w *Writer) Record(entry *models.RequestLog) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.entries <- entry:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Writer) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*models.RequestLog, 0, batchSize)
	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				w.flush(batch)
				batch = make([]*models.RequestLog, 0, batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]*models.RequestLog, 0, batchSize)
			}
		}
	}
}

func (w *Writer) flush(batch []*models.RequestLog) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := w.repo.InsertRequestLogs(ctx, batch); err != nil {
		w.logger.Error("Failed to write request logs", "count", len(batch), "error", err)
	}
}
