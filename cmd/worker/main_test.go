package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"hcsrelay/config"
	ledger "hcsrelay/ledger/client"
	"hcsrelay/ledger/types"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

func testWorkerConfig(submitTimeout string) *config.WorkerConfig {
	cfg := &config.WorkerConfig{SubmitTimeout: submitTimeout}
	cfg.KafkaConsumer.Brokers = []string{config.MockBrokerAddr}
	cfg.Worker.SetDefaults()
	cfg.Worker.BatchTimeout = "10ms"
	return cfg
}

func TestServe_SignalReleasesLedgerClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ledger.NewMockLedgerClient(ctrl)
	client.EXPECT().TopicID().Return("0.0.5678").AnyTimes()
	client.EXPECT().Network().Return("testnet").AnyTimes()
	client.EXPECT().
		SubmitMessage(gomock.Any(), gomock.Any()).
		Return(&types.Receipt{TransactionID: "0.0.1234@1690000000.000", ConsensusTimestamp: "1690000001.000000000"}, nil).
		AnyTimes()
	client.EXPECT().Close().Return(nil).Times(1)

	stop := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(testWorkerConfig("5s"), quietLogger(), client, stop)
	}()

	time.Sleep(50 * time.Millisecond)
	stop <- syscall.SIGINT

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not shut down")
	}
}

func TestServe_StartupFailureReleasesLedgerClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ledger.NewMockLedgerClient(ctrl)
	client.EXPECT().Close().Return(nil).Times(1)

	err := serve(testWorkerConfig("soon"), quietLogger(), client, make(chan os.Signal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid submit_timeout")
}
