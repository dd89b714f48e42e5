package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"hcsrelay/config"
	"hcsrelay/internal/models"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// requeueTimeout bounds the re-publish of a nacked message
const requeueTimeout = 10 * time.Second

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the consumer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements the Consumer interface to consume anchor requests from Kafka.
//
// Offsets are committed per partition only up to the oldest fetched message
// that is still unresolved, so acks arriving out of order never move the
// group past a message in flight. A nacked message is re-published to the
// tail of the topic and then counts as resolved. If the re-publish fails it
// stays unresolved and the partition's commits stop below it until the group
// redelivers it after a restart or rebalance.
type KafkaConsumer struct {
	reader  messageReader
	requeue messageWriter
	logger  log.FieldLogger

	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

// partitionOffsets tracks the fetched offsets of one partition
type partitionOffsets struct {
	inflight map[int64]struct{}
	resolved []kafka.Message
}

// NewKafkaConsumer creates a new KafkaConsumer instance
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger log.FieldLogger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}

	sessionTimeout, err := time.ParseDuration(cfg.SessionTimeout)
	if err != nil {
		logger.Warnf("Invalid session_timeout '%s', using default 30s", cfg.SessionTimeout)
		sessionTimeout = 30 * time.Second
	}

	heartbeatInterval, err := time.ParseDuration(cfg.HeartbeatInterval)
	if err != nil {
		logger.Warnf("Invalid heartbeat_interval '%s', using default 3s", cfg.HeartbeatInterval)
		heartbeatInterval = 3 * time.Second
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          10e6, // 10MB
		MaxWait:           1 * time.Second,
		SessionTimeout:    sessionTimeout,
		HeartbeatInterval: heartbeatInterval,
		StartOffset:       kafka.FirstOffset,
	}

	switch cfg.AutoOffsetReset {
	case "latest":
		readerConfig.StartOffset = kafka.LastOffset
	case "earliest", "":
	default:
		logger.Warnf("Unknown auto_offset_reset '%s', using earliest", cfg.AutoOffsetReset)
	}

	r := kafka.NewReader(readerConfig)
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("[kafka-requeue] "+msg, args...)
		}),
	}

	logger.WithFields(log.Fields{
		"brokers":  cfg.Brokers,
		"topic":    cfg.Topic,
		"group_id": cfg.GroupID,
	}).Info("Kafka consumer created")

	return newKafkaConsumer(r, w, logger), nil
}

func newKafkaConsumer(r messageReader, w messageWriter, logger log.FieldLogger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     r,
		requeue:    w,
		logger:     logger,
		partitions: make(map[int]*partitionOffsets),
	}
}

// Consume implements the Consumer interface by reading messages from Kafka
func (k *KafkaConsumer) Consume(ctx context.Context) (msg *models.AnchorRequest, ack func(success bool), err error) {
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}
	k.track(kafkaMsg)

	var req models.AnchorRequest
	if err := json.Unmarshal(kafkaMsg.Value, &req); err != nil {
		k.logger.WithError(err).Errorf("Failed to deserialize message at offset %d, discarding", kafkaMsg.Offset)
		k.resolve(context.Background(), kafkaMsg)
		return nil, nil, fmt.Errorf("message deserialization failed: %w", err)
	}

	var once sync.Once
	ackCallback := func(success bool) {
		once.Do(func() {
			if success {
				k.resolve(context.Background(), kafkaMsg)
				return
			}

			logger := k.logger.WithFields(log.Fields{
				"request_id": req.RequestID,
				"partition":  kafkaMsg.Partition,
				"offset":     kafkaMsg.Offset,
			})
			if err := k.requeueMessage(kafkaMsg); err != nil {
				logger.WithError(err).Error("NACK could not be requeued, partition commits stop below this offset")
				return
			}
			logger.Warn("NACK requeued to topic tail")
			k.resolve(context.Background(), kafkaMsg)
		})
	}

	return &req, ackCallback, nil
}

// requeueMessage writes a copy of msg to the end of the topic
func (k *KafkaConsumer) requeueMessage(msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()

	return k.requeue.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: msg.Headers,
	})
}

func (k *KafkaConsumer) track(msg kafka.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.partitions[msg.Partition]
	if !ok {
		p = &partitionOffsets{inflight: make(map[int64]struct{})}
		k.partitions[msg.Partition] = p
	}
	p.inflight[msg.Offset] = struct{}{}
}

// resolve marks msg as done and commits the highest resolved offset of its
// partition that has no unresolved offset below it
func (k *KafkaConsumer) resolve(ctx context.Context, msg kafka.Message) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.partitions[msg.Partition]
	if !ok {
		return
	}
	delete(p.inflight, msg.Offset)
	p.resolved = append(p.resolved, msg)

	floor := int64(math.MaxInt64)
	for off := range p.inflight {
		if off < floor {
			floor = off
		}
	}

	var (
		commit  kafka.Message
		found   bool
		waiting = p.resolved[:0]
	)
	for _, m := range p.resolved {
		switch {
		case m.Offset >= floor:
			waiting = append(waiting, m)
		case !found || m.Offset > commit.Offset:
			commit, found = m, true
		}
	}
	p.resolved = waiting

	if !found {
		k.logger.Debugf("Offset %d on partition %d waits for offset %d", msg.Offset, msg.Partition, floor)
		return
	}
	if err := k.reader.CommitMessages(ctx, commit); err != nil {
		k.logger.WithError(err).Errorf("Failed to commit offset %d", commit.Offset)
	}
}

// Close implements the Consumer interface by closing the Kafka reader and requeue writer
func (k *KafkaConsumer) Close() error {
	k.logger.Info("Closing Kafka consumer...")
	werr := k.requeue.Close()
	if err := k.reader.Close(); err != nil {
		return err
	}
	return werr
}

var _ Consumer = (*KafkaConsumer)(nil)
