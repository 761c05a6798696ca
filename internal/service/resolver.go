package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-sync/internal/circuitbreaker"
	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

const warnLedgerUnavailable = "Smart contract temporarily unavailable; serving cached data"

// ResolvedInvoice is an invoice view annotated with where its data came from.
type ResolvedInvoice struct {
	Invoice    *models.InvoiceView `json:"invoice"`
	Source     types.DataSource    `json:"source"`
	Warnings   []string            `json:"warnings,omitempty"`
	ResolvedAt time.Time           `json:"resolvedAt"`
}

// ResolvedPool is a pool view annotated with where its data came from.
type ResolvedPool struct {
	Pool       *models.PoolView `json:"pool"`
	Source     types.DataSource `json:"source"`
	Warnings   []string         `json:"warnings,omitempty"`
	ResolvedAt time.Time        `json:"resolvedAt"`
}

// Resolver assembles entity views by source priority: ledger first, cache
// as fallback, and a labeled placeholder when both are unreachable. It never
// returns an error; degraded outcomes are carried as warnings on the result.
type Resolver struct {
	reader   LedgerReader
	invoices InvoiceStore
	pools    PoolStore
	breaker  *circuitbreaker.CircuitBreaker
	cache    *ResolverCache
	logger   *logging.Logger
}

// NewResolver creates a resolver. viewCache may be nil to disable the
// read-through layer.
func NewResolver(reader LedgerReader, invoices InvoiceStore, pools PoolStore, viewCache *ResolverCache) *Resolver {
	return &Resolver{
		reader:   reader,
		invoices: invoices,
		pools:    pools,
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("ledger-read")),
		cache:    viewCache,
		logger:   logging.GetGlobalLogger(),
	}
}

// ResolveInvoice returns the best available view of one invoice.
//
// Resolution order: the ledger is authoritative; when it answers and the
// cache holds sanctioned metadata for the same id, the two are merged with
// ledger fields winning every overlap. When the ledger is unreachable the
// cache serves alone, with a warning. When neither store can answer, a
// clearly labeled placeholder is returned so callers always get a body.
func (r *Resolver) ResolveInvoice(ctx context.Context, id int64) *ResolvedInvoice {
	if r.cache != nil {
		if cached, err := r.cache.GetInvoice(ctx, id); err == nil && cached != nil {
			return cached
		}
	}

	resolved := r.resolveInvoice(ctx, id)
	if r.cache != nil && resolved.Source != types.SourceMock {
		if err := r.cache.PutInvoice(ctx, id, resolved); err != nil {
			r.logger.WithError(err).WithField("tokenId", id).Debug("Resolver cache write failed")
		}
	}
	return resolved
}

func (r *Resolver) resolveInvoice(ctx context.Context, id int64) *ResolvedInvoice {
	now := time.Now().UTC()

	inv, ledgerErr := r.readInvoice(ctx, id)
	if ledgerErr == nil && inv != nil {
		view := models.ViewFromInvoice(inv)
		source := types.SourceContract
		var warnings []string

		row, cacheErr := r.invoices.Get(ctx, id)
		if cacheErr != nil {
			r.logger.WithError(cacheErr).WithField("tokenId", id).Warn("Cache read failed during resolution")
			warnings = append(warnings, "Cache unavailable; response may be missing off-chain metadata")
		} else if row != nil && (row.Description != nil || row.TxHash != nil) {
			view.Description = row.Description
			view.TxHash = row.TxHash
			source = types.SourceHybrid
		}

		return &ResolvedInvoice{Invoice: view, Source: source, Warnings: warnings, ResolvedAt: now}
	}

	row, cacheErr := r.invoices.Get(ctx, id)
	if cacheErr == nil && row != nil {
		warning := warnLedgerUnavailable
		if ledgerErr != nil && ledger.IsNotFound(ledgerErr) {
			warning = fmt.Sprintf("Invoice %d not present on ledger; serving cached data", id)
		}
		return &ResolvedInvoice{
			Invoice:    models.ViewFromInvoiceRow(row),
			Source:     types.SourceDatabase,
			Warnings:   []string{warning},
			ResolvedAt: now,
		}
	}
	if cacheErr != nil {
		r.logger.WithError(cacheErr).WithField("tokenId", id).Warn("Cache read failed during resolution")
	}

	warnings := []string{"No authoritative data available; returning placeholder record"}
	if ledgerErr != nil && !ledger.IsNotFound(ledgerErr) {
		warnings = append([]string{warnLedgerUnavailable}, warnings...)
	}
	return &ResolvedInvoice{
		Invoice:    placeholderInvoice(id),
		Source:     types.SourceMock,
		Warnings:   warnings,
		ResolvedAt: now,
	}
}

// ResolvePool resolves a pool with the same source priority as invoices.
// Pools carry no cache-only metadata, so there is no hybrid outcome.
func (r *Resolver) ResolvePool(ctx context.Context, id int64) *ResolvedPool {
	if r.cache != nil {
		if cached, err := r.cache.GetPool(ctx, id); err == nil && cached != nil {
			return cached
		}
	}

	resolved := r.resolvePool(ctx, id)
	if r.cache != nil && resolved.Source != types.SourceMock {
		if err := r.cache.PutPool(ctx, id, resolved); err != nil {
			r.logger.WithError(err).WithField("poolId", id).Debug("Resolver cache write failed")
		}
	}
	return resolved
}

func (r *Resolver) resolvePool(ctx context.Context, id int64) *ResolvedPool {
	now := time.Now().UTC()

	pool, ledgerErr := r.readPool(ctx, id)
	if ledgerErr == nil && pool != nil {
		return &ResolvedPool{
			Pool:       models.ViewFromPool(pool),
			Source:     types.SourceContract,
			ResolvedAt: now,
		}
	}

	row, cacheErr := r.pools.Get(ctx, id)
	if cacheErr == nil && row != nil {
		warning := warnLedgerUnavailable
		if ledgerErr != nil && ledger.IsNotFound(ledgerErr) {
			warning = fmt.Sprintf("Pool %d not present on ledger; serving cached data", id)
		}
		return &ResolvedPool{
			Pool:       models.ViewFromPoolRow(row),
			Source:     types.SourceDatabase,
			Warnings:   []string{warning},
			ResolvedAt: now,
		}
	}
	if cacheErr != nil {
		r.logger.WithError(cacheErr).WithField("poolId", id).Warn("Cache read failed during resolution")
	}

	warnings := []string{"No authoritative data available; returning placeholder record"}
	if ledgerErr != nil && !ledger.IsNotFound(ledgerErr) {
		warnings = append([]string{warnLedgerUnavailable}, warnings...)
	}
	return &ResolvedPool{
		Pool:       placeholderPool(id),
		Source:     types.SourceMock,
		Warnings:   warnings,
		ResolvedAt: now,
	}
}

// readInvoice wraps the ledger call in the circuit breaker. A NotFound
// answer is a successful call for breaker accounting: the contract replied.
func (r *Resolver) readInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var inv *models.Invoice
	var notFound error
	err := r.breaker.Execute(ctx, func() error {
		got, callErr := r.reader.GetInvoice(ctx, id)
		if callErr != nil {
			if ledger.IsNotFound(callErr) {
				notFound = callErr
				return nil
			}
			return callErr
		}
		inv = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return inv, nil
}

func (r *Resolver) readPool(ctx context.Context, id int64) (*models.Pool, error) {
	var pool *models.Pool
	var notFound error
	err := r.breaker.Execute(ctx, func() error {
		got, callErr := r.reader.GetPool(ctx, id)
		if callErr != nil {
			if ledger.IsNotFound(callErr) {
				notFound = callErr
				return nil
			}
			return callErr
		}
		pool = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return pool, nil
}

func placeholderInvoice(id int64) *models.InvoiceView {
	desc := "Placeholder record: no data source is currently reachable"
	return &models.InvoiceView{
		TokenID:         id,
		ExporterCompany: "Unknown",
		ImporterCompany: "Unknown",
		ShippingAmount:  "0",
		LoanAmount:      "0",
		AmountInvested:  "0",
		AmountWithdrawn: "0",
		Status:          types.InvoicePending,
		Description:     &desc,
	}
}

func placeholderPool(id int64) *models.PoolView {
	return &models.PoolView{
		PoolID:            id,
		Name:              "Unknown",
		TotalLoanAmount:   "0",
		AmountInvested:    "0",
		AmountDistributed: "0",
		Status:            types.PoolOpen,
	}
}
