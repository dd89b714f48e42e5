package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no submission matches the lookup key
var ErrNotFound = errors.New("submission not found")

// SubmissionRecord is the local audit trail of one anchored message
type SubmissionRecord struct {
	TransactionID       string
	RequestID           string
	TopicID             string
	ConsensusTimestamp  string // empty when the receipt had none
	TopicSequenceNumber uint64
	MessageHash         string // hex SHA-256 of the submitted message
	Metadata            json.RawMessage
	SubmittedAt         time.Time
}

// Store persists anchored submissions
type Store interface {
	// RecordSubmission stores rec; recording the same transaction twice is a no-op
	RecordSubmission(ctx context.Context, rec *SubmissionRecord) error

	// RecordSubmissionBatch stores recs in one round trip
	RecordSubmissionBatch(ctx context.Context, recs []*SubmissionRecord) error

	// GetSubmission returns the record for transactionID or ErrNotFound
	GetSubmission(ctx context.Context, transactionID string) (*SubmissionRecord, error)

	// Close releases the connection pool
	Close()
}
