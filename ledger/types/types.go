package types

// Receipt is the normalized confirmation returned after a topic message
// reaches consensus. Identifiers are opaque and passed through as strings.
type Receipt struct {
	TransactionID       string
	ConsensusTimestamp  string // empty when the ledger adapter did not provide it
	TopicSequenceNumber uint64
	Status              string
}

// HasConsensusTimestamp reports whether the receipt carries a timestamp.
func (r *Receipt) HasConsensusTimestamp() bool {
	return r != nil && r.ConsensusTimestamp != ""
}

// TopicMessage is a single message read back from a topic
type TopicMessage struct {
	SequenceNumber     uint64 `json:"sequenceNumber"`
	ConsensusTimestamp string `json:"consensusTimestamp"`
	Contents           string `json:"contents"`
}
