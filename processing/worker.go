package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"hcsrelay/config"
	"hcsrelay/internal/messaging/consumer"
	"hcsrelay/internal/models"
	core "hcsrelay/relay/service/core"

	log "github.com/sirupsen/logrus"
)

// Submitter anchors one message; *core.Service satisfies it
type Submitter interface {
	SubmitMessage(ctx context.Context, in *core.SubmissionInput) (*core.SubmissionResult, error)
}

// BatchStats summarizes one processed batch
type BatchStats struct {
	Submitted int
	Dropped   int
	Retried   int
}

// Worker drains anchor requests from a consumer in batches
type Worker struct {
	cfg                config.BatchConfig
	batchTimeout       time.Duration // Parsed from cfg.BatchTimeout
	consumerRetryDelay time.Duration // Parsed from cfg.ConsumerRetryDelay

	logger    log.FieldLogger
	consumer  consumer.Consumer
	submitter Submitter
}

// New creates a new Worker instance
func New(cfg config.BatchConfig, logger log.FieldLogger, c consumer.Consumer, s Submitter) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	batchTimeout, err := time.ParseDuration(cfg.BatchTimeout)
	if err != nil || batchTimeout <= 0 {
		logger.Warnf("Invalid batch_timeout '%s', using default 1s", cfg.BatchTimeout)
		batchTimeout = time.Second
	}

	consumerRetryDelay, err := time.ParseDuration(cfg.ConsumerRetryDelay)
	if err != nil || consumerRetryDelay < 0 {
		logger.Warnf("Invalid consumer_retry_delay '%s', using default 5s", cfg.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}

	return &Worker{
		cfg:                cfg,
		batchTimeout:       batchTimeout,
		consumerRetryDelay: consumerRetryDelay,
		logger:             logger,
		consumer:           c,
		submitter:          s,
	}
}

// Run consumes until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Infof("Anchor worker started: batch_size=%d, batch_timeout=%s, concurrency=%d",
		w.cfg.BatchSize, w.batchTimeout, w.cfg.Concurrency)

	batch := make([]*models.AnchorRequest, 0, w.cfg.BatchSize)
	acks := make([]func(success bool), 0, w.cfg.BatchSize)
	batchTimer := time.NewTimer(0)
	if !batchTimer.Stop() {
		<-batchTimer.C
	}
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if !batchTimer.Stop() {
			select {
			case <-batchTimer.C:
			default:
			}
		}

		w.ProcessBatch(ctx, batch, acks)

		batch = make([]*models.AnchorRequest, 0, w.cfg.BatchSize)
		acks = make([]func(success bool), 0, w.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			for _, ack := range acks {
				ack(false)
			}
			w.logger.Info("Anchor worker stopped")
			return

		case <-batchTimer.C:
			flush()

		default:
			consumeCtx, consumeCancel := context.WithTimeout(ctx, 100*time.Millisecond)
			msg, ack, err := w.consumer.Consume(consumeCtx)
			consumeCancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				w.logger.WithError(err).Error("Consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(w.consumerRetryDelay):
				}
				continue
			}
			if msg == nil {
				continue
			}

			if len(batch) == 0 {
				batchTimer.Reset(w.batchTimeout)
			}
			batch = append(batch, msg)
			acks = append(acks, ack)

			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		}
	}
}

// ProcessBatch submits every request of batch with bounded concurrency and
// acknowledges each one by outcome: success and validation failures are
// acked, ledger failures are nacked for redelivery.
func (w *Worker) ProcessBatch(ctx context.Context, batch []*models.AnchorRequest, acks []func(success bool)) BatchStats {
	start := time.Now()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats BatchStats
	)
	sem := make(chan struct{}, w.cfg.Concurrency)

	for i, req := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(req *models.AnchorRequest, ack func(bool)) {
			defer wg.Done()
			defer func() { <-sem }()

			res := w.submitOne(ctx, req)

			mu.Lock()
			switch res {
			case outcomeSubmitted:
				stats.Submitted++
			case outcomeDropped:
				stats.Dropped++
			default:
				stats.Retried++
			}
			mu.Unlock()

			if ack != nil {
				ack(res != outcomeRetry)
			}
		}(req, acks[i])
	}
	wg.Wait()

	w.logger.WithFields(log.Fields{
		"size":      len(batch),
		"submitted": stats.Submitted,
		"dropped":   stats.Dropped,
		"retried":   stats.Retried,
		"total":     time.Since(start),
	}).Info("Batch processed")

	return stats
}

type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeDropped
	outcomeRetry
)

func (w *Worker) submitOne(ctx context.Context, req *models.AnchorRequest) outcome {
	logger := w.logger.WithField("request_id", req.RequestID)

	result, err := w.submitter.SubmitMessage(ctx, &core.SubmissionInput{
		RequestID: req.RequestID,
		Message:   req.Message,
		Metadata:  req.Metadata,
	})
	if err == nil {
		logger.WithField("transaction_id", result.TransactionID).Debug("Anchor request submitted")
		return outcomeSubmitted
	}

	if core.KindOf(err) == core.KindValidation {
		logger.WithError(err).Warn("Dropping invalid anchor request")
		return outcomeDropped
	}
	logger.WithError(err).Error("Anchor request failed, will be redelivered")
	return outcomeRetry
}
