package producer

import (
	"context"

	"hcsrelay/internal/models"
)

// Producer defines the interface for message queue producer
type Producer interface {
	// Publish sends a single message to the configured topic
	Publish(ctx context.Context, msg models.Message) error

	// PublishBatch sends messages in batch to the configured topic
	PublishBatch(ctx context.Context, msgs []models.Message) error

	// Close closes the producer connection
	Close() error
}
