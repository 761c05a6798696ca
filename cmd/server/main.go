// Package main provides the API server entry point for the ledger sync service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ledger-sync/internal/api"
	"github.com/ledger-sync/internal/config"
	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse is the audit sink; the service runs without history if it
	// is down.
	var auditRepo *storage.AuditRepository
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; running without run history")
	} else {
		defer clickhouse.Close()
		if err := storage.EnsureClickHouseSchema(context.Background(), clickhouse); err != nil {
			logger.WithError(err).Warn("ClickHouse schema setup failed; running without run history")
		} else {
			auditRepo = storage.NewAuditRepository(clickhouse)
		}
	}

	// Connect to the ledger
	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer client.Close()

	reader, err := ledger.NewReader(client, cfg.Chain.ContractAddress, cfg.Chain.CallTimeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ledger reader")
	}

	logger.WithFields(map[string]interface{}{
		"rpc":      cfg.Chain.RPCURL,
		"contract": cfg.Chain.ContractAddress,
	}).Info("Ledger reader initialized")

	// Repositories
	invoiceRepo := storage.NewInvoiceRepository(postgres)
	poolRepo := storage.NewPoolRepository(postgres)
	paymentRepo := storage.NewPaymentRepository(postgres)

	// Services
	viewCache := service.NewResolverCache(redis.Client(), 30*time.Second)
	fxRates := service.NewFxRateCache(redis.Client(), cfg.FxCache.TTL)
	resolver := service.NewResolver(reader, invoiceRepo, poolRepo, viewCache)
	// Consensus gates writes on the relational cache, the store payments
	// land in. Redis only accelerates reads and never gates anything.
	monitor := service.NewHealthMonitor(reader, postgres, cfg.Health.ProbeTimeout, cfg.Health.LatencyThreshold)
	healer := service.NewAutoHealer(reader, invoiceRepo, poolRepo, viewCache)

	var audit service.AuditSink
	var history api.HistoryInterface
	if auditRepo != nil {
		audit = auditRepo
		history = auditRepo
	}
	validator := service.NewConsistencyValidator(reader, invoiceRepo, audit, cfg.Validator.AmountTolerance, cfg.Backfill.MaxIterations)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, resolver, validator, healer, monitor, paymentRepo, history, fxRates, invoiceRepo)

	// Run until interrupted
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.WithError(err).Fatal("Server stopped unexpectedly")
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
