package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hcsrelay/internal/messaging/producer"
	"hcsrelay/internal/models"
	ledger "hcsrelay/ledger/client"
	"hcsrelay/ledger/types"
	"hcsrelay/storage/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StatusSuccess is the only status a SubmissionResult carries
const StatusSuccess = "success"

const (
	placeholderTxNote    = "Use Mirror Node API for detailed transaction information"
	placeholderTopicNote = "Use Mirror Node API to retrieve topic messages"

	DefaultTopicMessagesLimit = 10
	MaxTopicMessagesLimit     = 100
)

// SubmissionInput is one request to anchor a message
type SubmissionInput struct {
	RequestID string
	Message   string
	Metadata  json.RawMessage // optional JSON object, echoed back unchanged
}

// SubmissionResult is returned after the ledger confirmed the message
type SubmissionResult struct {
	Status              string          `json:"status"`
	TransactionID       string          `json:"transactionId"`
	ConsensusTimestamp  string          `json:"consensusTimestamp,omitempty"`
	TopicSequenceNumber uint64          `json:"topicSequenceNumber,omitempty"`
	TopicID             string          `json:"topicId"`
	Message             string          `json:"message"`
	Metadata            json.RawMessage `json:"metadata"`
	SubmittedAt         string          `json:"submittedAt"`
}

// EnqueueResult is returned when a message was queued for the anchor worker
type EnqueueResult struct {
	Status     string `json:"status"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// TransactionStatus is the best-effort answer to a transaction lookup
type TransactionStatus struct {
	TransactionID      string `json:"transactionId"`
	Status             string `json:"status"`
	TopicID            string `json:"topicId,omitempty"`
	ConsensusTimestamp string `json:"consensusTimestamp,omitempty"`
	SubmittedAt        string `json:"submittedAt,omitempty"`
	Note               string `json:"note"`
}

// TopicMessages is the answer to a topic message listing
type TopicMessages struct {
	TopicID  string               `json:"topicId"`
	Limit    int                  `json:"limit"`
	Messages []types.TopicMessage `json:"messages"`
	Note     string               `json:"note"`
}

// Service encapsulates the relay's submission logic
type Service struct {
	client        ledger.LedgerClient
	store         store.Store
	requests      producer.Producer
	batcher       *AuditBatcher
	metrics       *Metrics
	logger        log.FieldLogger
	submitTimeout time.Duration
	now           func() time.Time
}

// Option configures optional collaborators of the Service
type Option func(*Service)

// WithStore enables transaction lookups against the audit store
func WithStore(s store.Store) Option { return func(svc *Service) { svc.store = s } }

// WithAuditBatcher hands every success to b
func WithAuditBatcher(b *AuditBatcher) Option { return func(svc *Service) { svc.batcher = b } }

// WithRequestProducer enables EnqueueMessage
func WithRequestProducer(p producer.Producer) Option {
	return func(svc *Service) { svc.requests = p }
}

// WithMetrics records submission outcomes
func WithMetrics(m *Metrics) Option { return func(svc *Service) { svc.metrics = m } }

// WithSubmitTimeout bounds each ledger submission
func WithSubmitTimeout(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.submitTimeout = d
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// NewService creates a new Service around an already constructed ledger client
func NewService(client ledger.LedgerClient, logger log.FieldLogger, opts ...Option) *Service {
	svc := &Service{
		client:        client,
		logger:        logger,
		submitTimeout: 30 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Network returns the ledger network the relay is bound to
func (s *Service) Network() string { return s.client.Network() }

// TopicID returns the process-wide topic
func (s *Service) TopicID() string { return s.client.TopicID() }

// EnqueueEnabled reports whether EnqueueMessage can succeed
func (s *Service) EnqueueEnabled() bool { return s.requests != nil }

// SubmitMessage anchors one message on the configured topic and waits for its receipt
func (s *Service) SubmitMessage(ctx context.Context, in *SubmissionInput) (*SubmissionResult, error) {
	start := time.Now()

	metadata, err := validateInput(in)
	if err != nil {
		s.metrics.observe(OutcomeValidation, 0)
		return nil, err
	}

	logger := s.logger.WithField("request_id", in.RequestID)
	logger.Debugf("Submitting message to topic %s", s.client.TopicID())

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	receipt, err := s.client.SubmitMessage(submitCtx, []byte(in.Message))
	if err == nil && (receipt == nil || receipt.TransactionID == "") {
		err = errors.New("ledger returned an empty receipt")
	}
	if err != nil {
		if errors.Is(submitCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("submission timed out after %v: %w", s.submitTimeout, err)
		}
		s.metrics.observe(OutcomeFailure, time.Since(start))
		logger.WithError(err).Error("Error submitting message to HCS")
		return nil, NewLedgerError(err)
	}

	submittedAt := s.now().UTC()
	result := &SubmissionResult{
		Status:              StatusSuccess,
		TransactionID:       receipt.TransactionID,
		ConsensusTimestamp:  receipt.ConsensusTimestamp,
		TopicSequenceNumber: receipt.TopicSequenceNumber,
		TopicID:             s.client.TopicID(),
		Message:             in.Message,
		Metadata:            metadata,
		SubmittedAt:         submittedAt.Format(time.RFC3339Nano),
	}

	s.metrics.observe(OutcomeSuccess, time.Since(start))
	logger = logger.WithField("transaction_id", result.TransactionID)
	if !receipt.HasConsensusTimestamp() {
		logger.Warn("Ledger receipt carries no consensus timestamp")
	}
	logger.Info("Message submitted successfully")

	if s.batcher != nil {
		hash := MessageHash(in.Message)
		s.batcher.Add(&store.SubmissionRecord{
			TransactionID:       result.TransactionID,
			RequestID:           in.RequestID,
			TopicID:             result.TopicID,
			ConsensusTimestamp:  result.ConsensusTimestamp,
			TopicSequenceNumber: result.TopicSequenceNumber,
			MessageHash:         hash,
			Metadata:            metadata,
			SubmittedAt:         submittedAt,
		}, &models.AnchorEvent{
			RequestID:          in.RequestID,
			TransactionID:      result.TransactionID,
			ConsensusTimestamp: result.ConsensusTimestamp,
			TopicID:            result.TopicID,
			MessageHash:        hash,
			SubmittedAt:        result.SubmittedAt,
		})
	}

	return result, nil
}

// EnqueueMessage validates in and publishes it for the anchor worker
func (s *Service) EnqueueMessage(ctx context.Context, in *SubmissionInput) (*EnqueueResult, error) {
	if s.requests == nil {
		return nil, NewInternalError(ErrEnqueueDisabled)
	}
	metadata, err := validateInput(in)
	if err != nil {
		s.metrics.observe(OutcomeValidation, 0)
		return nil, err
	}

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req := &models.AnchorRequest{
		RequestID:  requestID,
		Message:    in.Message,
		Metadata:   metadata,
		EnqueuedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.requests.Publish(ctx, req); err != nil {
		return nil, NewInternalError(fmt.Errorf("failed to enqueue message: %w", err))
	}

	s.metrics.observe(OutcomeEnqueued, 0)
	return &EnqueueResult{Status: "accepted", RequestID: requestID, EnqueuedAt: req.EnqueuedAt}, nil
}

// QueryTransaction returns the status that is cheaply available for id.
// The relay has no historical-record client, so the status is always
// "submitted"; a local audit record only adds detail.
func (s *Service) QueryTransaction(ctx context.Context, id string) (*TransactionStatus, error) {
	if id == "" {
		return nil, NewValidationError("Transaction ID is required", errors.New("transactionId must not be empty"))
	}

	status := &TransactionStatus{
		TransactionID: id,
		Status:        "submitted",
		Note:          placeholderTxNote,
	}
	if s.store == nil {
		return status, nil
	}

	rec, err := s.store.GetSubmission(ctx, id)
	switch {
	case err == nil:
		status.TopicID = rec.TopicID
		status.ConsensusTimestamp = rec.ConsensusTimestamp
		status.SubmittedAt = rec.SubmittedAt.UTC().Format(time.RFC3339Nano)
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.WithError(err).WithField("transaction_id", id).Warn("Audit store lookup failed")
	}
	return status, nil
}

// QueryTopicMessages returns the messages of topicID. Retrieval needs a
// historical-record API client, so the list is always empty.
// A limit below 1 falls back to DefaultTopicMessagesLimit and a limit above
// MaxTopicMessagesLimit is clamped.
func (s *Service) QueryTopicMessages(ctx context.Context, topicID string, limit int) (*TopicMessages, error) {
	if topicID == "" {
		return nil, NewValidationError("Topic ID is required", errors.New("topicId must not be empty"))
	}
	switch {
	case limit < 1:
		limit = DefaultTopicMessagesLimit
	case limit > MaxTopicMessagesLimit:
		limit = MaxTopicMessagesLimit
	}
	return &TopicMessages{
		TopicID:  topicID,
		Limit:    limit,
		Messages: []types.TopicMessage{},
		Note:     placeholderTopicNote,
	}, nil
}

// Close stops the audit batcher, flushing what it holds
func (s *Service) Close() {
	if s.batcher != nil {
		s.batcher.Close()
	}
}

func validateInput(in *SubmissionInput) (json.RawMessage, error) {
	if in == nil || in.Message == "" {
		return nil, NewValidationError("Message is required", errors.New("message must be a non-empty string"))
	}
	metadata, err := NormalizeMetadata(in.Metadata)
	if err != nil {
		return nil, NewValidationError("Invalid metadata", err)
	}
	return metadata, nil
}

// NormalizeMetadata returns raw unchanged when it is a JSON object, and an
// empty object when raw is absent or null
func NormalizeMetadata(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, errors.New("metadata must be a JSON object")
	}
	return raw, nil
}

// MessageHash is the hex SHA-256 of message
func MessageHash(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}
