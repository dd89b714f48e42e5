package models

import "encoding/json"

// Message is anything that can be published to a Kafka topic
type Message interface {
	MessageKey() string
}

// AnchorRequest is a queued submission waiting for the anchor worker.
// Used by the enqueue endpoint, the producers and the worker.
type AnchorRequest struct {
	RequestID  string          `json:"requestId"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	EnqueuedAt string          `json:"enqueuedAt"`
}

// MessageKey partitions requests by request id
func (r *AnchorRequest) MessageKey() string { return r.RequestID }

// AnchorEvent announces a message that reached consensus
type AnchorEvent struct {
	RequestID          string `json:"requestId"`
	TransactionID      string `json:"transactionId"`
	ConsensusTimestamp string `json:"consensusTimestamp,omitempty"`
	TopicID            string `json:"topicId"`
	MessageHash        string `json:"messageHash"`
	SubmittedAt        string `json:"submittedAt"`
}

// MessageKey keeps every event for one transaction on one partition
func (e *AnchorEvent) MessageKey() string { return e.TransactionID }
