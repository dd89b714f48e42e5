package core

import (
	"context"
	"sync"
	"time"

	"hcsrelay/internal/messaging/producer"
	"hcsrelay/internal/models"
	"hcsrelay/storage/store"

	log "github.com/sirupsen/logrus"
)

// AuditBatcher writes successful submissions to the audit store and the
// event stream in batches, off the request path
type AuditBatcher struct {
	batchSize    int
	batchTimeout time.Duration
	logger       log.FieldLogger
	store        store.Store       // may be nil
	producer     producer.Producer // may be nil

	buffer      []*auditEntry
	bufferMutex sync.Mutex
	closed      bool
	flushChan   chan []*auditEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type auditEntry struct {
	record *store.SubmissionRecord
	event  *models.AnchorEvent
}

// NewAuditBatcher creates a batcher and starts its background goroutines
func NewAuditBatcher(batchSize int, batchTimeout time.Duration, flushChannelBuffer int,
	s store.Store, p producer.Producer, logger log.FieldLogger) *AuditBatcher {

	if batchSize <= 0 {
		batchSize = 1
	}
	if batchTimeout <= 0 {
		batchTimeout = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &AuditBatcher{
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		logger:       logger,
		store:        s,
		producer:     p,
		buffer:       make([]*auditEntry, 0, batchSize),
		flushChan:    make(chan []*auditEntry, flushChannelBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}

	b.wg.Add(2)
	go b.batchTimer()
	go b.batchProcessor()

	return b
}

// Add queues one successful submission
func (b *AuditBatcher) Add(rec *store.SubmissionRecord, evt *models.AnchorEvent) {
	b.bufferMutex.Lock()
	if b.closed {
		b.bufferMutex.Unlock()
		b.logger.WithField("transaction_id", rec.TransactionID).Warn("Audit batcher closed, dropping record")
		return
	}
	b.buffer = append(b.buffer, &auditEntry{record: rec, event: evt})
	shouldFlush := len(b.buffer) >= b.batchSize
	b.bufferMutex.Unlock()

	if shouldFlush {
		b.flushIfNeeded()
	}
}

func (b *AuditBatcher) batchTimer() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushIfNeeded()
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *AuditBatcher) batchProcessor() {
	defer b.wg.Done()

	for {
		select {
		case batch := <-b.flushChan:
			b.processBatch(batch)
		case <-b.ctx.Done():
			// Drain queued batches and the buffer before shutdown
		drain:
			for {
				select {
				case batch := <-b.flushChan:
					b.processBatch(batch)
				default:
					break drain
				}
			}
			b.bufferMutex.Lock()
			remaining := b.buffer
			b.buffer = nil
			b.bufferMutex.Unlock()

			b.processBatch(remaining)
			return
		}
	}
}

// flushIfNeeded hands the buffer to the processor; if the flush channel is
// full the entries stay buffered for the next tick
func (b *AuditBatcher) flushIfNeeded() {
	b.bufferMutex.Lock()
	defer b.bufferMutex.Unlock()

	if len(b.buffer) == 0 {
		return
	}

	batch := make([]*auditEntry, len(b.buffer))
	copy(batch, b.buffer)

	select {
	case b.flushChan <- batch:
		b.buffer = b.buffer[:0]
	default:
	}
}

func (b *AuditBatcher) processBatch(batch []*auditEntry) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var dbDuration, kafkaDuration time.Duration

	if b.store != nil {
		records := make([]*store.SubmissionRecord, len(batch))
		for i, e := range batch {
			records[i] = e.record
		}
		dbStart := time.Now()
		if err := b.store.RecordSubmissionBatch(ctx, records); err != nil {
			b.logger.WithError(err).Errorf("Audit store batch insert failed (%d records)", len(records))
		}
		dbDuration = time.Since(dbStart)
	}

	if b.producer != nil {
		events := make([]models.Message, len(batch))
		for i, e := range batch {
			events[i] = e.event
		}
		kafkaStart := time.Now()
		if err := b.producer.PublishBatch(ctx, events); err != nil {
			b.logger.WithError(err).Errorf("Anchor event publish failed (%d events)", len(events))
		}
		kafkaDuration = time.Since(kafkaStart)
	}

	b.logger.WithFields(log.Fields{
		"size":  len(batch),
		"db":    dbDuration,
		"kafka": kafkaDuration,
		"total": time.Since(start),
	}).Debug("Audit batch processed")
}

// Close flushes what is buffered and stops the background goroutines
func (b *AuditBatcher) Close() {
	b.bufferMutex.Lock()
	if b.closed {
		b.bufferMutex.Unlock()
		return
	}
	b.closed = true
	b.bufferMutex.Unlock()

	b.cancel()
	b.wg.Wait()
}
