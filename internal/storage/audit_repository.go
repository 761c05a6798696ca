package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-sync/internal/models"
)

// AuditRepository appends validation and backfill run history to ClickHouse.
// The sink is best effort: callers log failures instead of failing the run.
type AuditRepository struct {
	db *ClickHouseDB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *ClickHouseDB) *AuditRepository {
	return &AuditRepository{db: db}
}

// RecordValidationRun appends one validator run and its issues.
func (r *AuditRepository) RecordValidationRun(ctx context.Context, result *models.ValidationResult) error {
	consistent := uint8(0)
	if result.IsConsistent {
		consistent = 1
	}

	err := r.db.Exec(ctx,
		`INSERT INTO validation_runs (run_id, checked_at, invoice_count, issue_count, health_score, consistent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.CheckedAt,
		uint32(result.InvoiceCount),
		uint32(len(result.Issues)),
		uint8(result.HealthScore),
		consistent,
	)
	if err != nil {
		return fmt.Errorf("failed to record validation run: %w", err)
	}

	batch, err := r.db.Conn().PrepareBatch(ctx,
		`INSERT INTO validation_issues (run_id, checked_at, entity_id, entity_kind, issue_type, severity, description, auto_healable)`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue batch: %w", err)
	}

	for _, issue := range result.Issues {
		healable := uint8(0)
		if issue.AutoHealable {
			healable = 1
		}
		if err := batch.Append(
			result.RunID,
			result.CheckedAt,
			issue.EntityID,
			string(issue.Kind),
			string(issue.Type),
			string(issue.Severity),
			issue.Description,
			healable,
		); err != nil {
			return fmt.Errorf("failed to append issue to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send issue batch: %w", err)
	}
	return nil
}

// RecordBackfillRun appends one walker run summary.
func (r *AuditRepository) RecordBackfillRun(ctx context.Context, report *models.WalkReport, startedAt time.Time) error {
	err := r.db.Exec(ctx,
		`INSERT INTO backfill_runs (run_id, entity_kind, started_at, last_id, written, skipped, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		string(report.Kind),
		startedAt,
		report.LastID,
		uint32(report.Written),
		uint32(len(report.Skipped)),
		uint64(report.Duration.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to record backfill run: %w", err)
	}
	return nil
}

// ValidationRunSummary is one row of validator history.
type ValidationRunSummary struct {
	RunID        string    `json:"runId"`
	CheckedAt    time.Time `json:"checkedAt"`
	InvoiceCount uint32    `json:"invoiceCount"`
	IssueCount   uint32    `json:"issueCount"`
	HealthScore  uint8     `json:"healthScore"`
	Consistent   bool      `json:"consistent"`
}

// ListValidationRuns returns the most recent validator runs, newest first.
func (r *AuditRepository) ListValidationRuns(ctx context.Context, limit int) ([]ValidationRunSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.Conn().Query(ctx,
		`SELECT run_id, checked_at, invoice_count, issue_count, health_score, consistent
		 FROM validation_runs
		 ORDER BY checked_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation runs: %w", err)
	}
	defer rows.Close()

	var runs []ValidationRunSummary
	for rows.Next() {
		var (
			run        ValidationRunSummary
			consistent uint8
		)
		if err := rows.Scan(&run.RunID, &run.CheckedAt, &run.InvoiceCount, &run.IssueCount, &run.HealthScore, &consistent); err != nil {
			return nil, fmt.Errorf("failed to scan validation run: %w", err)
		}
		run.Consistent = consistent == 1
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
