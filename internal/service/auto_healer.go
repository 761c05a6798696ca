package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// AutoHealer repairs drifted cache rows by re-deriving them from ledger
// truth. It only acts on issues the validator marked auto-healable, and a
// heal is always a full row rewrite: partial field patches would let two
// issues on the same row race each other.
type AutoHealer struct {
	reader    LedgerReader
	invoices  InvoiceStore
	pools     PoolStore
	viewCache *ResolverCache
	logger    *logging.Logger
}

// NewAutoHealer creates a healer. viewCache may be nil.
func NewAutoHealer(reader LedgerReader, invoices InvoiceStore, pools PoolStore, viewCache *ResolverCache) *AutoHealer {
	return &AutoHealer{
		reader:    reader,
		invoices:  invoices,
		pools:     pools,
		viewCache: viewCache,
		logger:    logging.GetGlobalLogger(),
	}
}

// Heal rewrites the cache row for every auto-healable issue. Multiple
// issues against the same entity collapse into one rewrite. Failures are
// collected per entity; one bad entity never aborts the pass.
func (h *AutoHealer) Heal(ctx context.Context, issues []models.ConsistencyIssue) *models.HealReport {
	report := &models.HealReport{}

	invoiceIDs, poolIDs := healTargets(issues)
	var healedInvoices, healedPools []int64

	for _, id := range invoiceIDs {
		if err := ctx.Err(); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.HealFailure{
				EntityID: id, Reason: err.Error(),
			})
			continue
		}
		if err := h.healInvoice(ctx, id); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.HealFailure{
				EntityID: id, Reason: err.Error(),
			})
			h.logger.WithError(err).WithField("tokenId", id).Warn("Heal failed")
			continue
		}
		report.Healed++
		healedInvoices = append(healedInvoices, id)
	}

	for _, id := range poolIDs {
		if err := ctx.Err(); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.HealFailure{
				EntityID: id, Reason: err.Error(),
			})
			continue
		}
		if err := h.healPool(ctx, id); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.HealFailure{
				EntityID: id, Reason: err.Error(),
			})
			h.logger.WithError(err).WithField("poolId", id).Warn("Heal failed")
			continue
		}
		report.Healed++
		healedPools = append(healedPools, id)
	}

	if h.viewCache != nil && (len(healedInvoices) > 0 || len(healedPools) > 0) {
		if err := h.viewCache.Invalidate(ctx, healedInvoices, healedPools); err != nil {
			h.logger.WithError(err).Warn("Resolver cache invalidation failed after heal")
		}
	}

	h.logger.WithFields(map[string]interface{}{
		"healed": report.Healed,
		"failed": report.Failed,
	}).Info("Auto-heal pass finished")
	return report
}

// healInvoice re-derives one invoice row from the ledger. The upsert
// preserves the row's cache-only metadata, so healing never destroys it.
func (h *AutoHealer) healInvoice(ctx context.Context, id int64) error {
	inv, err := h.reader.GetInvoice(ctx, id)
	if err != nil {
		if ledger.IsNotFound(err) {
			return fmt.Errorf("invoice %d has no ledger truth to heal from", id)
		}
		return fmt.Errorf("read invoice %d from ledger: %w", id, err)
	}
	row := models.InvoiceRowFromLedger(inv, h.reader.ContractAddress())
	if err := h.invoices.Upsert(ctx, row); err != nil {
		return fmt.Errorf("rewrite invoice row %d: %w", id, err)
	}
	return nil
}

func (h *AutoHealer) healPool(ctx context.Context, id int64) error {
	pool, err := h.reader.GetPool(ctx, id)
	if err != nil {
		if ledger.IsNotFound(err) {
			return fmt.Errorf("pool %d has no ledger truth to heal from", id)
		}
		return fmt.Errorf("read pool %d from ledger: %w", id, err)
	}
	row := models.PoolRowFromLedger(pool, h.reader.ContractAddress())
	if err := h.pools.Upsert(ctx, row); err != nil {
		return fmt.Errorf("rewrite pool row %d: %w", id, err)
	}
	return nil
}

// healTargets collapses auto-healable issues into deduplicated, ordered
// id lists per entity kind.
func healTargets(issues []models.ConsistencyIssue) (invoiceIDs, poolIDs []int64) {
	invoiceSet := make(map[int64]bool)
	poolSet := make(map[int64]bool)
	for _, issue := range issues {
		if !issue.AutoHealable {
			continue
		}
		switch issue.Kind {
		case types.KindInvoice:
			invoiceSet[issue.EntityID] = true
		case types.KindPool:
			poolSet[issue.EntityID] = true
		}
	}
	for id := range invoiceSet {
		invoiceIDs = append(invoiceIDs, id)
	}
	for id := range poolSet {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(invoiceIDs, func(i, j int) bool { return invoiceIDs[i] < invoiceIDs[j] })
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })
	return invoiceIDs, poolIDs
}
