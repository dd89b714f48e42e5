package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hcsrelay/config"
	"hcsrelay/internal/logging"
	"hcsrelay/internal/messaging/producer"
	ledger "hcsrelay/ledger/client"
	core "hcsrelay/relay/service/core"
	grpchandler "hcsrelay/relay/service/grpc"
	httphandler "hcsrelay/relay/service/http"
	"hcsrelay/storage/store"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	configDirFlag = cli.StringFlag{
		Name:    "config-dir",
		Usage:   "directory holding relay.defaults.yml, client_config.yml and clients/",
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
		Name:  "hcs-relay",
		Usage: "HTTP relay that anchors messages on a Hedera Consensus Service topic",
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
	// 1. Load environment and configuration
	if err := config.LoadDotEnv(c.String(envFileFlag.Name)); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.LoadConfig(c.String(configDirFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load relay configuration: %w", err)
	}
	relayCfg := cfg.Relay

	level := relayCfg.Monitoring.LogLevel
	if c.IsSet(logLevelFlag.Name) {
		level = c.String(logLevelFlag.Name)
	}
	logger, err := logging.New(level, relayCfg.Monitoring.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting HCS relay...")

	// 2. Ledger client; the relay does not start without one
	logger.Info("Initializing ledger client...")
	ledgerClient, err := ledger.NewLedgerClientFromConfig(cfg.Ledger, relayCfg.LedgerClientConfigPath, logging.Component(logger, "ledger"))
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return serve(relayCfg, logger, ledgerClient, quit, nil)
}

// serve wires the relay around ledgerClient and blocks until stop delivers
// a signal or a server fails. ledgerClient is closed on every return path.
// When ready is non-nil it receives the HTTP listener address once the
// servers are accepting.
func serve(relayCfg *config.RelayConfig, logger log.FieldLogger, ledgerClient ledger.LedgerClient, stop <-chan os.Signal, ready chan<- net.Addr) error {
	defer func() {
		if err := ledgerClient.Close(); err != nil {
			logger.WithError(err).Warn("Ledger client close failed")
		}
		logger.Info("Ledger client released.")
	}()
	logger.WithFields(log.Fields{
		"network":  ledgerClient.Network(),
		"topic_id": ledgerClient.TopicID(),
	}).Info("Ledger client ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Optional audit store and Kafka producers
	var auditStore store.Store
	relayCfg.Database.LogConfiguration(logger)
	if relayCfg.Database.Enabled() {
		pgStore, err := store.NewPostgresStore(ctx, relayCfg.Database, logging.Component(logger, "store"))
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer pgStore.Close()
		auditStore = pgStore
	}

	var events producer.Producer
	if relayCfg.KafkaEvents.Enabled() {
		p, err := producer.NewKafkaProducer(relayCfg.KafkaEvents, logging.Component(logger, "events"))
		if err != nil {
			return fmt.Errorf("failed to initialize event producer: %w", err)
		}
		defer p.Close()
		events = p
	}

	var requests producer.Producer
	if relayCfg.KafkaRequests.Enabled() {
		p, err := producer.NewKafkaProducer(relayCfg.KafkaRequests, logging.Component(logger, "requests"))
		if err != nil {
			return fmt.Errorf("failed to initialize request producer: %w", err)
		}
		defer p.Close()
		requests = p
	}

	// 4. Core service and handlers
	opts := []core.Option{core.WithSubmitTimeout(relayCfg.SubmitTimeout)}
	if auditStore != nil {
		opts = append(opts, core.WithStore(auditStore))
	}
	if auditStore != nil || events != nil {
		opts = append(opts, core.WithAuditBatcher(core.NewAuditBatcher(
			relayCfg.AuditBatch.BatchSize,
			relayCfg.AuditBatch.BatchTimeout,
			relayCfg.AuditBatch.FlushChannelBuffer,
			auditStore,
			events,
			logging.Component(logger, "audit"),
		)))
	}
	if requests != nil {
		opts = append(opts, core.WithRequestProducer(requests))
	}
	var metrics *core.Metrics
	if relayCfg.Monitoring.EnableMetrics {
		metrics = core.NewMetrics()
		opts = append(opts, core.WithMetrics(metrics))
	}

	coreService := core.NewService(ledgerClient, logging.Component(logger, "service"), opts...)
	defer coreService.Close()

	routeOpts := httphandler.RouteOptions{
		HealthPath:     relayCfg.Monitoring.HealthCheckPath,
		AllowedOrigins: relayCfg.HttpServer.AllowedOrigins,
	}
	if metrics != nil {
		routeOpts.MetricsPath = relayCfg.Monitoring.MetricsPath
		routeOpts.MetricsHandler = metrics.Handler()
	}
	relayHandler := httphandler.NewRelayHandler(coreService, logging.Component(logger, "http"), relayCfg.HttpServer.MaxBodyBytes)

	// 5. Listeners; both are bound before anything is served
	lis, err := net.Listen("tcp", relayCfg.HttpListenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", relayCfg.HttpListenAddr, err)
	}
	var grpcLis net.Listener
	if relayCfg.GrpcListenAddr != "" {
		grpcLis, err = net.Listen("tcp", relayCfg.GrpcListenAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("unable to listen on gRPC port %s: %w", relayCfg.GrpcListenAddr, err)
		}
	} else {
		logger.Info("grpc_listen_addr not configured, skipping gRPC health server startup.")
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// 6. HTTP server
	httpServer := &http.Server{
		Addr:           relayCfg.HttpListenAddr,
		Handler:        relayHandler.Routes(routeOpts),
		ReadTimeout:    relayCfg.HttpServer.ReadTimeout,
		WriteTimeout:   relayCfg.HttpServer.WriteTimeout,
		IdleTimeout:    relayCfg.HttpServer.IdleTimeout,
		MaxHeaderBytes: relayCfg.HttpServer.MaxHeaderBytes,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.WithFields(log.Fields{
			"addr":     lis.Addr().String(),
			"network":  ledgerClient.Network(),
			"topic_id": ledgerClient.TopicID(),
		}).Info("HTTP server listening")
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
		logger.Info("HTTP server stopped listening.")
	}()

	// 7. [Conditional startup] gRPC health server
	var healthServer *grpchandler.HealthServer
	if grpcLis != nil {
		healthServer = grpchandler.NewHealthServer(logging.Component(logger, "grpc"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server failed: %w", err)
			}
		}()
	}

	if ready != nil {
		ready <- lis.Addr()
	}

	// 8. Graceful shutdown
	var runErr error
	select {
	case sig := <-stop:
		logger.Infof("Received shutdown signal: %s, starting graceful shutdown...", sig)
	case runErr = <-errCh:
		logger.WithError(runErr).Error("Server failed, starting shutdown...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if healthServer != nil {
		healthServer.Stop()
	}

	wg.Wait()
	logger.Info("All servers stopped. Releasing ledger client.")
	return runErr
}
