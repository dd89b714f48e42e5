package ledger

import (
	"context"

	"hcsrelay/ledger/types"
)

// LedgerClient defines the write path to a consensus topic.
// Implementations are bound to one topic at construction and must be safe
// for concurrent use by in-flight requests.
type LedgerClient interface {
	// SubmitMessage submits message to the configured topic and blocks until
	// a receipt is available or ctx is done.
	SubmitMessage(ctx context.Context, message []byte) (*types.Receipt, error)

	// TopicID returns the configured topic identifier
	TopicID() string

	// Network returns the name of the network the client is bound to
	Network() string

	// Close releases the underlying network client
	Close() error
}
