package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// ConsistencyValidator compares cache rows against ledger truth and
// classifies every divergence. Validation is read-only and stateless: each
// run recomputes the full picture and the health score from scratch.
type ConsistencyValidator struct {
	reader      LedgerReader
	invoices    InvoiceStore
	audit       AuditSink
	tolerance   float64
	maxEntities int
	logger      *logging.Logger
}

// NewConsistencyValidator creates a validator. tolerance is the relative
// amount difference still classified as propagation lag rather than drift.
func NewConsistencyValidator(reader LedgerReader, invoices InvoiceStore, audit AuditSink, tolerance float64, maxEntities int) *ConsistencyValidator {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	if maxEntities <= 0 {
		maxEntities = 1000
	}
	return &ConsistencyValidator{
		reader:      reader,
		invoices:    invoices,
		audit:       audit,
		tolerance:   tolerance,
		maxEntities: maxEntities,
		logger:      logging.GetGlobalLogger(),
	}
}

// Validate walks every ledger invoice and every cache row and reports all
// divergences found. It returns an error only when the cache itself cannot
// be enumerated; ledger unavailability degrades to unverifiable findings.
func (v *ConsistencyValidator) Validate(ctx context.Context) (*models.ValidationResult, error) {
	cacheIDs, err := v.invoices.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cached invoice ids: %w", err)
	}

	var issues []models.ConsistencyIssue
	visited := make(map[int64]bool)
	checked := 0
	ledgerDown := false

	for id := int64(1); ; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if checked >= v.maxEntities {
			v.logger.WithField("maxEntities", v.maxEntities).Warn("Validation walk hit entity cap")
			break
		}

		inv, readErr := v.reader.GetInvoice(ctx, id)
		if readErr != nil {
			if ledger.IsNotFound(readErr) {
				break
			}
			// Enumeration is broken past this point. Remaining cache rows
			// become unverifiable below instead of false positives.
			ledgerDown = true
			v.logger.WithError(readErr).WithField("tokenId", id).Warn("Ledger unreachable during validation")
			break
		}

		visited[id] = true
		checked++

		row, cacheErr := v.invoices.Get(ctx, id)
		if cacheErr != nil {
			return nil, fmt.Errorf("read cached invoice %d: %w", id, cacheErr)
		}
		if row == nil {
			issues = append(issues, models.ConsistencyIssue{
				EntityID:     id,
				Kind:         types.KindInvoice,
				Type:         types.IssueMissingFromCache,
				Severity:     types.SeverityCritical,
				Description:  fmt.Sprintf("invoice %d exists on ledger but has no cache row", id),
				AutoHealable: true,
			})
			continue
		}
		issues = append(issues, v.compareInvoice(inv, row)...)
	}

	for _, id := range cacheIDs {
		if visited[id] {
			continue
		}
		checked++
		if ledgerDown {
			issues = append(issues, unverifiableIssue(id))
			continue
		}
		issues = append(issues, v.checkOrphan(ctx, id))
	}

	result := &models.ValidationResult{
		RunID:        uuid.New().String(),
		HealthScore:  models.HealthScoreFromIssues(issues),
		InvoiceCount: checked,
		Issues:       issues,
		IsConsistent: len(issues) == 0,
		CheckedAt:    time.Now().UTC(),
	}
	v.recordRun(ctx, result)
	return result, nil
}

// ValidateIDs checks a specific set of ids without enumerating the ledger.
func (v *ConsistencyValidator) ValidateIDs(ctx context.Context, ids []int64) (*models.ValidationResult, error) {
	var issues []models.ConsistencyIssue
	checked := 0

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		checked++

		inv, readErr := v.reader.GetInvoice(ctx, id)
		row, cacheErr := v.invoices.Get(ctx, id)
		if cacheErr != nil {
			return nil, fmt.Errorf("read cached invoice %d: %w", id, cacheErr)
		}

		switch {
		case readErr == nil:
			if row == nil {
				issues = append(issues, models.ConsistencyIssue{
					EntityID:     id,
					Kind:         types.KindInvoice,
					Type:         types.IssueMissingFromCache,
					Severity:     types.SeverityCritical,
					Description:  fmt.Sprintf("invoice %d exists on ledger but has no cache row", id),
					AutoHealable: true,
				})
			} else {
				issues = append(issues, v.compareInvoice(inv, row)...)
			}
		case ledger.IsNotFound(readErr):
			if row != nil {
				issues = append(issues, orphanIssue(id))
			}
		default:
			issues = append(issues, unverifiableIssue(id))
		}
	}

	result := &models.ValidationResult{
		RunID:        uuid.New().String(),
		HealthScore:  models.HealthScoreFromIssues(issues),
		InvoiceCount: checked,
		Issues:       issues,
		IsConsistent: len(issues) == 0,
		CheckedAt:    time.Now().UTC(),
	}
	v.recordRun(ctx, result)
	return result, nil
}

// checkOrphan classifies a cache row whose id the ledger walk never reached.
func (v *ConsistencyValidator) checkOrphan(ctx context.Context, id int64) models.ConsistencyIssue {
	_, err := v.reader.GetInvoice(ctx, id)
	switch {
	case err == nil:
		// Reachable after all; the walk stopped early at the entity cap.
		return unverifiableIssue(id)
	case ledger.IsNotFound(err):
		return orphanIssue(id)
	default:
		return unverifiableIssue(id)
	}
}

// compareInvoice produces every divergence between a ledger invoice and its
// cache row. Description and TxHash are sanctioned cache-only fields and
// are never flagged.
func (v *ConsistencyValidator) compareInvoice(inv *models.Invoice, row *models.InvoiceRow) []models.ConsistencyIssue {
	var issues []models.ConsistencyIssue
	add := func(issueType types.IssueType, severity types.Severity, healable bool, format string, args ...interface{}) {
		issues = append(issues, models.ConsistencyIssue{
			EntityID:     inv.TokenID,
			Kind:         types.KindInvoice,
			Type:         issueType,
			Severity:     severity,
			Description:  fmt.Sprintf(format, args...),
			AutoHealable: healable,
		})
	}

	if inv.Status != row.Status {
		ledgerRank := inv.Status.Rank()
		cacheRank := row.Status.Rank()
		if ledgerRank > 0 && cacheRank > 0 && ledgerRank-cacheRank == 1 {
			add(types.IssueStatusLag, types.SeverityMedium, true,
				"cache status %s is one step behind ledger status %s", row.Status, inv.Status)
		} else {
			add(types.IssueStatusConflict, types.SeverityHigh, true,
				"cache status %s conflicts with ledger status %s", row.Status, inv.Status)
		}
	}

	v.compareAmount(&issues, inv.TokenID, "amountInvested", inv.AmountInvested, row.AmountInvested)
	v.compareAmount(&issues, inv.TokenID, "amountWithdrawn", inv.AmountWithdrawn, row.AmountWithdrawn)
	v.compareAmount(&issues, inv.TokenID, "loanAmount", inv.LoanAmount, row.LoanAmount)
	v.compareAmount(&issues, inv.TokenID, "shippingAmount", inv.ShippingAmount, row.ShippingAmount)

	if violation := cacheInvariantViolation(row); violation != "" {
		add(types.IssueInvariantViolation, types.SeverityCritical, true, "%s", violation)
	}

	if inv.ExporterCompany != row.ExporterCompany {
		add(types.IssueCosmetic, types.SeverityLow, true,
			"exporter company %q differs from ledger %q", row.ExporterCompany, inv.ExporterCompany)
	}
	if inv.ImporterCompany != row.ImporterCompany {
		add(types.IssueCosmetic, types.SeverityLow, true,
			"importer company %q differs from ledger %q", row.ImporterCompany, inv.ImporterCompany)
	}
	if inv.ImporterEmail != row.ImporterEmail {
		add(types.IssueCosmetic, types.SeverityLow, true,
			"importer email %q differs from ledger %q", row.ImporterEmail, inv.ImporterEmail)
	}

	return issues
}

// compareAmount classifies a numeric mismatch. A cache value trailing the
// ledger within tolerance is propagation lag; anything else, a cache value
// ahead of the ledger included, is drift.
func (v *ConsistencyValidator) compareAmount(issues *[]models.ConsistencyIssue, id int64, field string, ledgerVal *big.Int, cacheVal string) {
	if ledgerVal == nil {
		ledgerVal = big.NewInt(0)
	}
	cached, ok := new(big.Int).SetString(cacheVal, 10)
	if !ok {
		*issues = append(*issues, models.ConsistencyIssue{
			EntityID:     id,
			Kind:         types.KindInvoice,
			Type:         types.IssueAmountDrift,
			Severity:     types.SeverityHigh,
			Description:  fmt.Sprintf("%s cache value %q is not a valid amount", field, cacheVal),
			AutoHealable: true,
		})
		return
	}
	if cached.Cmp(ledgerVal) == 0 {
		return
	}

	issueType := types.IssueAmountDrift
	severity := types.SeverityHigh
	description := fmt.Sprintf("%s cache value %s diverges from ledger value %s", field, cached, ledgerVal)
	if cached.Cmp(ledgerVal) < 0 && withinTolerance(ledgerVal, cached, v.tolerance) {
		issueType = types.IssueAmountLag
		severity = types.SeverityMedium
		description = fmt.Sprintf("%s cache value %s trails ledger value %s within tolerance", field, cached, ledgerVal)
	}

	*issues = append(*issues, models.ConsistencyIssue{
		EntityID:     id,
		Kind:         types.KindInvoice,
		Type:         issueType,
		Severity:     severity,
		Description:  description,
		AutoHealable: true,
	})
}

// withinTolerance reports whether |ledger-cache| / ledger <= tolerance.
func withinTolerance(ledgerVal, cached *big.Int, tolerance float64) bool {
	if ledgerVal.Sign() == 0 {
		return false
	}
	diff := new(big.Float).SetInt(new(big.Int).Sub(ledgerVal, cached))
	diff.Abs(diff)
	ratio := new(big.Float).Quo(diff, new(big.Float).SetInt(ledgerVal))
	return ratio.Cmp(big.NewFloat(tolerance)) <= 0
}

// cacheInvariantViolation checks invariants that must hold inside a single
// cache row regardless of ledger state.
func cacheInvariantViolation(row *models.InvoiceRow) string {
	invested, okI := new(big.Int).SetString(row.AmountInvested, 10)
	withdrawn, okW := new(big.Int).SetString(row.AmountWithdrawn, 10)
	loan, okL := new(big.Int).SetString(row.LoanAmount, 10)
	if !okI || !okW || !okL {
		return ""
	}
	if withdrawn.Cmp(invested) > 0 {
		return fmt.Sprintf("amount withdrawn %s exceeds amount invested %s", withdrawn, invested)
	}
	if invested.Cmp(loan) > 0 {
		return fmt.Sprintf("amount invested %s exceeds loan amount %s", invested, loan)
	}
	return ""
}

func orphanIssue(id int64) models.ConsistencyIssue {
	return models.ConsistencyIssue{
		EntityID:     id,
		Kind:         types.KindInvoice,
		Type:         types.IssueMissingFromLedger,
		Severity:     types.SeverityCritical,
		Description:  fmt.Sprintf("cache row %d has no corresponding ledger entry", id),
		AutoHealable: false,
	}
}

func unverifiableIssue(id int64) models.ConsistencyIssue {
	return models.ConsistencyIssue{
		EntityID:     id,
		Kind:         types.KindInvoice,
		Type:         types.IssueUnverifiable,
		Severity:     types.SeverityLow,
		Description:  fmt.Sprintf("invoice %d could not be verified against the ledger", id),
		AutoHealable: false,
	}
}

func (v *ConsistencyValidator) recordRun(ctx context.Context, result *models.ValidationResult) {
	if v.audit == nil {
		return
	}
	if err := v.audit.RecordValidationRun(ctx, result); err != nil {
		v.logger.WithError(err).WithField("runId", result.RunID).Warn("Failed to record validation run")
	}
}
