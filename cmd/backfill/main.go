// Package main provides a CLI tool for backfilling the cache from the ledger.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ledger-sync/internal/config"
	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
)

func main() {
	var (
		kind     = flag.String("kind", "all", "Entity kind to walk: invoices, pools, investments, all, skipped")
		skipKind = flag.String("skip-kind", "invoice", "Entity kind for -kind=skipped: invoice, pool")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var audit service.AuditSink
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; walk will not be recorded")
	} else {
		defer clickhouse.Close()
		if err := storage.EnsureClickHouseSchema(context.Background(), clickhouse); err != nil {
			logger.WithError(err).Warn("ClickHouse schema setup failed; walk will not be recorded")
		} else {
			audit = storage.NewAuditRepository(clickhouse)
		}
	}

	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer client.Close()

	reader, err := ledger.NewReader(client, cfg.Chain.ContractAddress, cfg.Chain.CallTimeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ledger reader")
	}

	walker := service.NewBackfillWalker(
		reader,
		storage.NewInvoiceRepository(postgres),
		storage.NewPoolRepository(postgres),
		storage.NewInvestmentRepository(postgres),
		storage.NewSkipRepository(postgres),
		audit,
		service.WalkerConfig{
			MaxIterations: cfg.Backfill.MaxIterations,
			RetryAttempts: cfg.Backfill.RetryAttempts,
			RetryDelay:    cfg.Backfill.RetryDelay,
			RatePerSecond: cfg.Backfill.RatePerSecond,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var reports []*models.WalkReport
	switch *kind {
	case "invoices":
		report, walkErr := walker.WalkInvoices(ctx)
		err = walkErr
		reports = append(reports, report)
	case "pools":
		report, walkErr := walker.WalkPools(ctx)
		err = walkErr
		reports = append(reports, report)
	case "investments":
		report, walkErr := walker.WalkInvestments(ctx)
		err = walkErr
		reports = append(reports, report)
	case "all":
		reports, err = walker.WalkAll(ctx)
	case "skipped":
		entityKind := types.EntityKind(*skipKind)
		if entityKind != types.KindInvoice && entityKind != types.KindPool {
			logger.WithField("skipKind", *skipKind).Fatal("Unknown skip kind")
		}
		report, walkErr := walker.RewalkSkipped(ctx, entityKind)
		err = walkErr
		reports = append(reports, report)
	default:
		logger.WithField("kind", *kind).Fatal("Unknown walk kind")
	}

	for _, report := range reports {
		if report == nil {
			continue
		}
		logger.WithFields(map[string]interface{}{
			"runId":    report.RunID,
			"kind":     string(report.Kind),
			"lastId":   report.LastID,
			"written":  report.Written,
			"skipped":  len(report.Skipped),
			"duration": report.Duration.String(),
		}).Info("Walk finished")
	}
	if err != nil {
		logger.WithError(err).Error("Backfill failed")
		os.Exit(1)
	}
}
