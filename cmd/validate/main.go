// Package main provides a CLI tool for checking cache consistency against
// the ledger, optionally repairing what it finds.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ledger-sync/internal/config"
	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
)

func main() {
	var (
		heal   = flag.Bool("heal", false, "Repair auto-healable issues after validation")
		idList = flag.String("ids", "", "Comma-separated invoice ids to check; empty checks everything")
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

	ids, err := parseIDs(*idList)
	if err != nil {
		logger.WithError(err).Fatal("Invalid -ids value")
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var audit service.AuditSink
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable; run will not be recorded")
	} else {
		defer clickhouse.Close()
		if err := storage.EnsureClickHouseSchema(context.Background(), clickhouse); err != nil {
			logger.WithError(err).Warn("ClickHouse schema setup failed; run will not be recorded")
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

	invoiceRepo := storage.NewInvoiceRepository(postgres)
	poolRepo := storage.NewPoolRepository(postgres)
	validator := service.NewConsistencyValidator(reader, invoiceRepo, audit, cfg.Validator.AmountTolerance, cfg.Backfill.MaxIterations)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	validation, validateErr := runValidation(ctx, validator, ids)
	if validateErr != nil {
		logger.WithError(validateErr).Fatal("Validation failed")
	}

	logger.WithFields(map[string]interface{}{
		"runId":        validation.RunID,
		"healthScore":  validation.HealthScore,
		"invoiceCount": validation.InvoiceCount,
		"issues":       len(validation.Issues),
		"consistent":   validation.IsConsistent,
	}).Info("Validation finished")

	for _, issue := range validation.Issues {
		logger.WithFields(map[string]interface{}{
			"entityId":     issue.EntityID,
			"kind":         string(issue.Kind),
			"type":         string(issue.Type),
			"severity":     string(issue.Severity),
			"autoHealable": issue.AutoHealable,
		}).Warn(issue.Description)
	}

	if *heal && len(validation.Issues) > 0 {
		healer := service.NewAutoHealer(reader, invoiceRepo, poolRepo, nil)
		report := healer.Heal(ctx, validation.Issues)
		logger.WithFields(map[string]interface{}{
			"healed": report.Healed,
			"failed": report.Failed,
		}).Info("Heal finished")

		post, postErr := runValidation(ctx, validator, ids)
		if postErr != nil {
			logger.WithError(postErr).Fatal("Post-heal validation failed")
		}
		logger.WithFields(map[string]interface{}{
			"runId":       post.RunID,
			"healthScore": post.HealthScore,
			"issues":      len(post.Issues),
			"consistent":  post.IsConsistent,
		}).Info("Post-heal validation finished")

		if report.Failed > 0 || !post.IsConsistent {
			os.Exit(1)
		}
		return
	}

	if !validation.IsConsistent {
		os.Exit(1)
	}
}

func runValidation(ctx context.Context, validator *service.ConsistencyValidator, ids []int64) (*models.ValidationResult, error) {
	if len(ids) > 0 {
		return validator.ValidateIDs(ctx, ids)
	}
	return validator.Validate(ctx)
}

// parseIDs parses a comma-separated id list.
func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
