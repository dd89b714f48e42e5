package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hcsrelay/config"
	"hcsrelay/internal/models"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger log.FieldLogger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger log.FieldLogger) (*KafkaProducer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 50 * time.Millisecond
	}

	batchBytes := cfg.BatchBytes
	if batchBytes == 0 {
		batchBytes = 5 * 1024 * 1024 // 5MB
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "all":
		requiredAcks = kafka.RequireAll
	default:
		requiredAcks = kafka.RequireOne // wait for leader
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},

		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		BatchBytes:   int64(batchBytes),

		RequiredAcks: requiredAcks,
		Async:        cfg.Async,

		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("Kafka writer: "+msg, args...)
		}),
	}

	logger.WithFields(log.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("Kafka producer created")

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// encode builds the wire message; the key keeps related messages on one partition
func encode(msg models.Message) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize message (key: %s): %w", msg.MessageKey(), err)
	}
	return kafka.Message{
		Key:   []byte(msg.MessageKey()),
		Value: value,
	}, nil
}

// Publish sends a message
func (p *KafkaProducer) Publish(ctx context.Context, msg models.Message) error {
	kafkaMsg, err := encode(msg)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		p.logger.WithError(err).WithField("key", msg.MessageKey()).Error("Failed to write Kafka message")
		return fmt.Errorf("failed to write to Kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// PublishBatch sends messages in batch to the configured topic
func (p *KafkaProducer) PublishBatch(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		kafkaMsg, err := encode(msg)
		if err != nil {
			return err
		}
		kafkaMsgs[i] = kafkaMsg
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.logger.WithError(err).Errorf("Failed to write %d Kafka messages", len(msgs))
		return fmt.Errorf("failed to batch write to Kafka topic %s: %w", p.topic, err)
	}

	p.logger.Debugf("Wrote %d Kafka messages to topic %s", len(msgs), p.topic)
	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Info("Closing Kafka producer (and flushing buffer)...")
	return p.writer.Close()
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
