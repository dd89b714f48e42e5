package hedera

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hcsrelay/config"
	"hcsrelay/ledger/types"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubClient builds a Client whose SDK round trip is replaced by exec
func newStubClient(timeout time.Duration, exec func([]byte) (*types.Receipt, error)) *Client {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return &Client{
		topicID: hedera.TopicID{Shard: 0, Realm: 0, Topic: 5678},
		cfg:     &config.LedgerConfig{RequestTimeout: timeout},
		hcfg:    &HederaConfig{Network: NetworkTestnet},
		logger:  logger,
		exec:    exec,
	}
}

func TestClient_SubmitMessagePassesReceiptThrough(t *testing.T) {
	var got []byte
	c := newStubClient(time.Second, func(msg []byte) (*types.Receipt, error) {
		got = msg
		return &types.Receipt{TransactionID: "0.0.1234@1690000000.000", Status: "SUCCESS", TopicSequenceNumber: 7}, nil
	})

	receipt, err := c.SubmitMessage(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, "0.0.1234@1690000000.000", receipt.TransactionID)
	assert.Equal(t, uint64(7), receipt.TopicSequenceNumber)
	assert.False(t, receipt.HasConsensusTimestamp())

	assert.Equal(t, "0.0.5678", c.TopicID())
	assert.Equal(t, NetworkTestnet, c.Network())
}

func TestClient_SubmitMessageRejectsEmpty(t *testing.T) {
	var calls atomic.Int32
	c := newStubClient(time.Second, func([]byte) (*types.Receipt, error) {
		calls.Add(1)
		return nil, nil
	})

	_, err := c.SubmitMessage(context.Background(), nil)
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestClient_SubmitMessagePropagatesSDKError(t *testing.T) {
	sdkErr := errors.New("INVALID_TOPIC_ID")
	c := newStubClient(time.Second, func([]byte) (*types.Receipt, error) {
		return nil, sdkErr
	})

	_, err := c.SubmitMessage(context.Background(), []byte("hello"))
	assert.ErrorIs(t, err, sdkErr)
}

func TestClient_SubmitMessageTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := newStubClient(20*time.Millisecond, func([]byte) (*types.Receipt, error) {
		<-release
		return &types.Receipt{TransactionID: "late"}, nil
	})

	start := time.Now()
	_, err := c.SubmitMessage(context.Background(), []byte("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_SubmitMessageHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := newStubClient(time.Minute, func([]byte) (*types.Receipt, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SubmitMessage(ctx, []byte("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_CloseWithoutSDKClient(t *testing.T) {
	c := newStubClient(time.Second, nil)
	assert.NoError(t, c.Close())
}

func TestNewHederaClient_FailsFast(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	_, err := NewHederaClient(&config.LedgerConfig{}, logger)
	require.Error(t, err, "missing chain specific config")

	cfg := validConfig()
	cfg.TopicID = ""
	_, err = NewHederaClient(&config.LedgerConfig{ChainSpecific: cfg}, logger)
	require.Error(t, err)

	cfg = validConfig()
	cfg.OperatorAccountID = "not-an-account"
	_, err = NewHederaClient(&config.LedgerConfig{ChainSpecific: cfg}, logger)
	require.ErrorContains(t, err, "operator account id")

	cfg = validConfig()
	cfg.OperatorPrivateKey = "zz-not-hex"
	_, err = NewHederaClient(&config.LedgerConfig{ChainSpecific: cfg}, logger)
	require.ErrorContains(t, err, "private key")
}

func TestFormatConsensusTimestamp(t *testing.T) {
	assert.Equal(t, "", FormatConsensusTimestamp(time.Time{}))
	assert.Equal(t, "1690000000.000000042", FormatConsensusTimestamp(time.Unix(1690000000, 42)))
	assert.Equal(t, "1690000000.500000000", FormatConsensusTimestamp(time.Unix(1690000000, 5e8)))
}
