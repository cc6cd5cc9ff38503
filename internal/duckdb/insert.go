package duckdb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

// Defaults for InsertBufferConfig.
const (
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 200 * time.Millisecond
	DefaultFlushQueueSize = 64
	DefaultRetryBackoff   = 100 * time.Millisecond
)

// InsertBufferConfig tunes an InsertBuffer. Zero values take the defaults.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	// Retries is how many more times a failed batch is written before it
	// is dropped. Backoff doubles from RetryBackoff.
	Retries      int
	RetryBackoff time.Duration
	// OnFlush is called with the size of every batch written successfully.
	OnFlush func(n int)
}

// InsertStats counts records through the buffer.
type InsertStats struct {
	Added   int64
	Written int64
	Failed  int64
	Dropped int64
	// Inline counts batches written on the caller's goroutine because the
	// flush queue was full.
	Inline int64
}

// InsertBuffer decouples ingestion from DuckDB writes. Records collect in
// a pending batch that is cut by size or by the flush interval and handed
// to a single writer goroutine, so batches reach the store in order.
type InsertBuffer struct {
	writer model.LogWriter
	cfg    InsertBufferConfig

	mu      sync.Mutex
	pending []*model.LogRecord

	queue   chan []*model.LogRecord
	closing chan struct{}
	cutter  sync.WaitGroup
	flusher sync.WaitGroup
	once    sync.Once

	added, written, failed, dropped, inline atomic.Int64
	lastInlineWarn                          atomic.Int64
}

// NewInsertBuffer starts the cutter and writer goroutines.
func NewInsertBuffer(writer model.LogWriter, conf ...InsertBufferConfig) *InsertBuffer {
	var cfg InsertBufferConfig
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushQueueSize <= 0 {
		cfg.FlushQueueSize = DefaultFlushQueueSize
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	b := &InsertBuffer{
		writer:  writer,
		cfg:     cfg,
		pending: make([]*model.LogRecord, 0, cfg.BatchSize),
		queue:   make(chan []*model.LogRecord, cfg.FlushQueueSize),
		closing: make(chan struct{}),
	}
	b.flusher.Add(1)
	go b.writeLoop()
	b.cutter.Add(1)
	go b.cutLoop()
	return b
}

// Add queues a record. It never waits on DuckDB unless the flush queue is
// full. Records without an id get a random one; records added after Stop
// are dropped.
func (b *InsertBuffer) Add(record *model.LogRecord) {
	if record == nil {
		return
	}
	select {
	case <-b.closing:
		b.dropped.Add(1)
		zap.S().Warnf("duckdb: insert buffer stopped, dropping record id=%s", record.ID)
		return
	default:
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	b.added.Add(1)

	b.mu.Lock()
	b.pending = append(b.pending, record)
	full := len(b.pending) >= b.cfg.BatchSize
	var batch []*model.LogRecord
	if full {
		batch = b.takeLocked()
	}
	b.mu.Unlock()

	if full {
		b.submit(batch)
	}
}

func (b *InsertBuffer) takeLocked() []*model.LogRecord {
	batch := b.pending
	b.pending = make([]*model.LogRecord, 0, b.cfg.BatchSize)
	return batch
}

func (b *InsertBuffer) cut() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.takeLocked()
	b.mu.Unlock()
	b.submit(batch)
}

// submit queues batch for the writer; a full queue writes it inline so
// memory stays bounded under a slow disk.
func (b *InsertBuffer) submit(batch []*model.LogRecord) {
	select {
	case b.queue <- batch:
		return
	default:
	}
	n := b.inline.Add(1)
	if now := time.Now().Unix(); now-b.lastInlineWarn.Load() >= 10 {
		b.lastInlineWarn.Store(now)
		zap.S().Warnf("duckdb: flush queue full, %d batches written inline so far", n)
	}
	b.write(batch)
}

func (b *InsertBuffer) cutLoop() {
	defer b.cutter.Done()
	t := time.NewTicker(b.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.cut()
		case <-b.closing:
			b.cut()
			return
		}
	}
}

func (b *InsertBuffer) writeLoop() {
	defer b.flusher.Done()
	for batch := range b.queue {
		b.write(batch)
	}
}

func (b *InsertBuffer) write(batch []*model.LogRecord) {
	backoff := b.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := b.writer.InsertLogBatch(batch)
		if err == nil {
			b.written.Add(int64(len(batch)))
			if b.cfg.OnFlush != nil {
				b.cfg.OnFlush(len(batch))
			}
			return
		}
		if attempt >= b.cfg.Retries {
			b.failed.Add(int64(len(batch)))
			zap.S().Errorf("duckdb: dropping batch of %d records after %d attempts: %v", len(batch), attempt+1, err)
			return
		}
		zap.S().Warnf("duckdb: batch write failed (attempt %d), retrying in %s: %v", attempt+1, backoff, err)
		time.Sleep(backoff)
		backoff *= 2
	}
}

// Stats returns a snapshot of the buffer counters.
func (b *InsertBuffer) Stats() InsertStats {
	return InsertStats{
		Added:   b.added.Load(),
		Written: b.written.Load(),
		Failed:  b.failed.Load(),
		Dropped: b.dropped.Load(),
		Inline:  b.inline.Load(),
	}
}

// Stop writes whatever is pending and waits for the writer to finish.
// Repeated calls are no-ops.
func (b *InsertBuffer) Stop() {
	b.once.Do(func() {
		close(b.closing)
		// The final cut must be queued before the queue closes.
		b.cutter.Wait()
		close(b.queue)
		b.flusher.Wait()
	})
}
