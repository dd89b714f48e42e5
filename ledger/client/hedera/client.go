package hedera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hcsrelay/config"
	"hcsrelay/ledger/types"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
	log "github.com/sirupsen/logrus"
)

// Client is the wrapper around the Hedera SDK client bound to one topic
type Client struct {
	sdkClient *hedera.Client
	topicID   hedera.TopicID
	cfg       *config.LedgerConfig
	hcfg      *HederaConfig
	logger    log.FieldLogger

	// exec performs the blocking SDK round trip; replaced in tests
	exec func(message []byte) (*types.Receipt, error)
}

// NewHederaClient initializes the Hedera SDK client with the combined
// configuration. Any credential or topic parsing failure is returned so the
// caller can abort startup.
func NewHederaClient(cfg *config.LedgerConfig, logger log.FieldLogger) (*Client, error) {
	hcfg, ok := cfg.ChainSpecific.(*HederaConfig)
	if !ok || hcfg == nil {
		return nil, fmt.Errorf("invalid Hedera configuration type")
	}
	if err := hcfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Hedera configuration: %w", err)
	}

	accountID, err := hedera.AccountIDFromString(hcfg.OperatorAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator account id: %w", err)
	}
	privateKey, err := parsePrivateKey(hcfg.KeyType, hcfg.OperatorPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator private key: %w", err)
	}
	topicID, err := hedera.TopicIDFromString(hcfg.TopicID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse topic id: %w", err)
	}

	sdkClient, err := newSDKClient(hcfg)
	if err != nil {
		return nil, err
	}
	sdkClient.SetOperator(accountID, privateKey)
	sdkClient.SetMaxAttempts(cfg.MaxAttempts)
	sdkClient.SetMinBackoff(cfg.MinBackoff)
	sdkClient.SetMaxBackoff(cfg.MaxBackoff)

	logger.WithFields(log.Fields{
		"network":  hcfg.Network,
		"operator": hcfg.OperatorAccountID,
		"topic":    topicID.String(),
	}).Info("Hedera SDK client initialized")

	c := &Client{
		sdkClient: sdkClient,
		topicID:   topicID,
		cfg:       cfg,
		hcfg:      hcfg,
		logger:    logger,
	}
	c.exec = c.execute
	return c, nil
}

func newSDKClient(hcfg *HederaConfig) (*hedera.Client, error) {
	switch hcfg.Network {
	case NetworkMainnet:
		return hedera.ClientForMainnet(), nil
	case NetworkTestnet:
		return hedera.ClientForTestnet(), nil
	case NetworkPreviewnet:
		return hedera.ClientForPreviewnet(), nil
	case NetworkLocal:
		nodeAccount, err := hedera.AccountIDFromString(hcfg.NodeAccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse node account id: %w", err)
		}
		client := hedera.ClientForNetwork(map[string]hedera.AccountID{hcfg.NodeAddress: nodeAccount})
		if hcfg.MirrorAddress != "" {
			client.SetMirrorNetwork([]string{hcfg.MirrorAddress})
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported Hedera network: %q", hcfg.Network)
	}
}

func parsePrivateKey(keyType, raw string) (hedera.PrivateKey, error) {
	switch keyType {
	case KeyTypeED25519:
		return hedera.PrivateKeyFromStringEd25519(raw)
	case KeyTypeDER:
		return hedera.PrivateKeyFromStringDer(raw)
	default:
		return hedera.PrivateKeyFromStringECDSA(raw)
	}
}

// TopicID returns the configured topic identifier
func (c *Client) TopicID() string {
	return c.topicID.String()
}

// Network returns the configured network name
func (c *Client) Network() string {
	return c.hcfg.Network
}

// Close stops the SDK client
func (c *Client) Close() error {
	c.logger.Info("Closing Hedera SDK client...")
	if c.sdkClient == nil {
		return nil
	}
	if err := c.sdkClient.Close(); err != nil {
		c.logger.WithError(err).Error("Error closing Hedera SDK client")
		return fmt.Errorf("failed to close Hedera SDK client: %w", err)
	}
	return nil
}

type execResult struct {
	receipt *types.Receipt
	err     error
}

// SubmitMessage submits message to the configured topic and waits for its receipt.
// The SDK calls are not context aware, so they run on their own goroutine; the
// result channel is buffered so that goroutine finishes even if ctx expires first.
func (c *Client) SubmitMessage(ctx context.Context, message []byte) (*types.Receipt, error) {
	if len(message) == 0 {
		return nil, errors.New("message cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		receipt, err := c.exec(message)
		done <- execResult{receipt: receipt, err: err}
	}()

	select {
	case res := <-done:
		return res.receipt, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for receipt on topic %s: %w", c.topicID.String(), ctx.Err())
	}
}

func (c *Client) execute(message []byte) (*types.Receipt, error) {
	tx := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(c.topicID).
		SetMessage(message).
		SetMaxChunks(c.hcfg.MaxChunks)

	resp, err := tx.Execute(c.sdkClient)
	if err != nil {
		return nil, fmt.Errorf("SDK execute failed: %w", err)
	}

	receipt, err := resp.GetReceipt(c.sdkClient)
	if err != nil {
		return nil, fmt.Errorf("receipt for %s: %w", resp.TransactionID.String(), err)
	}
	if receipt.Status != hedera.StatusSuccess {
		return nil, fmt.Errorf("transaction %s reached consensus with status %s", resp.TransactionID.String(), receipt.Status.String())
	}

	result := &types.Receipt{
		TransactionID:       resp.TransactionID.String(),
		TopicSequenceNumber: receipt.TopicSequenceNumber,
		Status:              receipt.Status.String(),
	}

	if c.hcfg.FetchRecord {
		record, err := resp.GetRecord(c.sdkClient)
		if err != nil {
			// The receipt already proves consensus; the timestamp is optional
			c.logger.WithError(err).WithField("transaction_id", result.TransactionID).Warn("Failed to fetch transaction record")
		} else {
			result.ConsensusTimestamp = FormatConsensusTimestamp(record.ConsensusTimestamp)
		}
	}

	return result, nil
}

// FormatConsensusTimestamp renders t in the ledger's "seconds.nanoseconds" form
func FormatConsensusTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}
