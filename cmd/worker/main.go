package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hcsrelay/config"
	"hcsrelay/internal/logging"
	"hcsrelay/internal/messaging/consumer"
	"hcsrelay/internal/messaging/producer"
	ledger "hcsrelay/ledger/client"
	worker "hcsrelay/processing"
	core "hcsrelay/relay/service/core"
	"hcsrelay/storage/store"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	configDirFlag = cli.StringFlag{
		Name:    "config-dir",
		Usage:   "directory holding worker.defaults.yml, client_config.yml and clients/",
		EnvVars: []string{config.EnvConfigDirPath},
		Value:   "./config",
	}
	envFileFlag = cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file loaded before the configuration, skipped if missing",
		Value: ".env",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "overrides monitoring.log_level (trace, debug, info, warn, error)",
	}
)

func main() {
	app := &cli.App{
		Name:  "hcs-anchor-worker",
		Usage: "drains queued anchor requests and submits them to the HCS topic",
		Flags: []cli.Flag{
			&configDirFlag,
			&envFileFlag,
			&logLevelFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	// 1. Load environment and worker config
	if err := config.LoadDotEnv(c.String(envFileFlag.Name)); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.LoadWorkerSetup(c.String(configDirFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load worker configuration: %w", err)
	}
	workerCfg := cfg.Worker

	level := workerCfg.Monitoring.LogLevel
	if c.IsSet(logLevelFlag.Name) {
		level = c.String(logLevelFlag.Name)
	}
	logger, err := logging.New(level, workerCfg.Monitoring.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting anchor worker...")

	// 2. Initialize dependencies
	logger.Info("Initializing ledger client...")
	ledgerClient, err := ledger.NewLedgerClientFromConfig(cfg.Ledger, workerCfg.LedgerClientConfigPath, logging.Component(logger, "ledger"))
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return serve(workerCfg, logger, ledgerClient, quit)
}

// serve runs one worker per consumer around ledgerClient until stop
// delivers a signal. ledgerClient is closed on every return path.
func serve(workerCfg *config.WorkerConfig, logger log.FieldLogger, ledgerClient ledger.LedgerClient, stop <-chan os.Signal) error {
	defer func() {
		if err := ledgerClient.Close(); err != nil {
			logger.WithError(err).Warn("Ledger client close failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var auditStore store.Store
	workerCfg.Database.LogConfiguration(logger)
	if workerCfg.Database.Enabled() {
		pgStore, err := store.NewPostgresStore(ctx, workerCfg.Database, logging.Component(logger, "store"))
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer pgStore.Close()
		auditStore = pgStore
	}

	var events producer.Producer
	if workerCfg.KafkaEvents.Enabled() {
		p, err := producer.NewKafkaProducer(workerCfg.KafkaEvents, logging.Component(logger, "events"))
		if err != nil {
			return fmt.Errorf("failed to initialize event producer: %w", err)
		}
		defer p.Close()
		events = p
	}

	submitTimeout, err := time.ParseDuration(workerCfg.SubmitTimeout)
	if err != nil {
		return fmt.Errorf("invalid submit_timeout %q: %w", workerCfg.SubmitTimeout, err)
	}
	opts := []core.Option{core.WithSubmitTimeout(submitTimeout)}
	if auditStore != nil {
		opts = append(opts, core.WithStore(auditStore))
	}
	if auditStore != nil || events != nil {
		opts = append(opts, core.WithAuditBatcher(core.NewAuditBatcher(
			workerCfg.AuditBatch.BatchSize,
			workerCfg.AuditBatch.BatchTimeout,
			workerCfg.AuditBatch.FlushChannelBuffer,
			auditStore,
			events,
			logging.Component(logger, "audit"),
		)))
	}
	coreService := core.NewService(ledgerClient, logging.Component(logger, "service"), opts...)
	defer coreService.Close()

	// 3. Initialize consumers
	var mqConsumers []consumer.Consumer
	defer func() {
		for _, c := range mqConsumers {
			c.Close()
		}
	}()
	if !workerCfg.KafkaConsumer.UseMock() {
		logger.Infof("Initializing %d Kafka message queue consumers...", workerCfg.KafkaConsumer.Count)
		for i := 0; i < workerCfg.KafkaConsumer.Count; i++ {
			kafkaConsumer, err := consumer.NewKafkaConsumer(workerCfg.KafkaConsumer, logging.Component(logger, "consumer"))
			if err != nil {
				return fmt.Errorf("failed to initialize Kafka consumer %d: %w", i, err)
			}
			mqConsumers = append(mqConsumers, kafkaConsumer)
		}
	} else {
		logger.Info("Initializing Mock message queue consumer...")
		mqConsumers = append(mqConsumers, consumer.NewMockConsumer(logging.Component(logger, "consumer")))
	}

	// 4. Start one worker per consumer
	var wg sync.WaitGroup
	for i, mq := range mqConsumers {
		w := worker.New(workerCfg.Worker, logger.WithField("worker", i+1), mq, coreService)
		wg.Add(1)
		go func(workerID int, w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
			logger.Infof("Worker %d stopped.", workerID)
		}(i+1, w)
	}
	logger.Infof("Anchor worker started with %d workers. Press Ctrl+C to stop.", len(mqConsumers))

	// 5. Graceful shutdown
	sig := <-stop
	logger.Infof("Received shutdown signal: %s, initiating graceful shutdown...", sig)
	cancel()

	logger.Info("Waiting for all workers to finish...")
	wg.Wait()

	logger.Info("Anchor worker shut down gracefully.")
	return nil
}
