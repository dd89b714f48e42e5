package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"hcsrelay/internal/models"

	log "github.com/sirupsen/logrus"
)

// MockConsumer serves a fixed set of anchor requests from memory.
type MockConsumer struct {
	logger   log.FieldLogger
	messages chan *models.AnchorRequest

	mu     sync.Mutex
	closed bool
}

// PredefinedRequests are the demo credit-issuance messages the dashboard simulates.
var PredefinedRequests []*models.AnchorRequest

func init() {
	now := time.Now().UTC()
	PredefinedRequests = []*models.AnchorRequest{
		{
			RequestID:  "c1a1b1d1-0000-4000-8000-000000000001",
			Message:    `{"action":"issue_credit","project":"solar-farm-07","tonnes":120}`,
			Metadata:   json.RawMessage(`{"type":"credit_issuance","source":"mock"}`),
			EnqueuedAt: now.Add(-time.Minute).Format(time.RFC3339Nano),
		},
		{
			RequestID:  "c2a2b2d2-0000-4000-8000-000000000002",
			Message:    `{"action":"retire_credit","project":"wind-park-03","tonnes":15}`,
			Metadata:   json.RawMessage(`{"type":"credit_retirement","source":"mock"}`),
			EnqueuedAt: now.Add(-30 * time.Second).Format(time.RFC3339Nano),
		},
		{
			// Empty message, dropped by the worker as a validation failure
			RequestID:  "c3a3b3d3-0000-4000-8000-000000000003",
			Message:    "",
			EnqueuedAt: now.Format(time.RFC3339Nano),
		},
	}
}

// NewMockConsumer creates a MockConsumer loaded with msgs, or with
// PredefinedRequests when msgs is empty.
func NewMockConsumer(logger log.FieldLogger, msgs ...*models.AnchorRequest) *MockConsumer {
	if len(msgs) == 0 {
		msgs = PredefinedRequests
	}
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan *models.AnchorRequest, len(msgs)+5),
	}
	for _, msg := range msgs {
		mc.messages <- msg
	}
	logger.Infof("[MockConsumer] Loaded %d predefined messages", len(msgs))
	return mc
}

// Consume reads predefined messages from the channel.
func (m *MockConsumer) Consume(ctx context.Context) (msg *models.AnchorRequest, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case msg, ok := <-m.messages:
		if !ok || msg == nil {
			return nil, nil, errors.New("message channel closed")
		}
		m.logger.WithField("request_id", msg.RequestID).Debug("[MockConsumer] Consumed message")

		ackCallback := func(success bool) {
			if success {
				m.logger.WithField("request_id", msg.RequestID).Debug("[MockConsumer] ACK")
				return
			}
			m.requeue(msg)
		}
		return msg, ackCallback, nil
	}
}

func (m *MockConsumer) requeue(msg *models.AnchorRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.messages <- msg:
		m.logger.WithField("request_id", msg.RequestID).Info("[MockConsumer] NACK, message re-queued")
	default:
		m.logger.WithField("request_id", msg.RequestID).Warn("[MockConsumer] NACK, re-queue failed (channel full)")
	}
}

// Pending returns the number of messages still queued.
func (m *MockConsumer) Pending() int {
	return len(m.messages)
}

// Close closes the message channel.
func (m *MockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.messages)
	m.logger.Info("[MockConsumer] Closed")
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
