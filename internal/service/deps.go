// Package service implements the ledger/cache consistency subsystem:
// backfill walking, source-priority resolution, health probing, drift
// validation and auto-healing.
package service

import (
	"context"
	"time"

	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// LedgerReader is the typed read surface of the trade-finance contract.
// Implemented by ledger.Reader; tests substitute fakes.
type LedgerReader interface {
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	GetPool(ctx context.Context, id int64) (*models.Pool, error)
	GetPoolInvestors(ctx context.Context, poolID int64) ([]string, error)
	GetInvestment(ctx context.Context, poolID int64, investor string) (*models.Investment, error)
	ContractAddress() string
}

// InvoiceStore is the cache surface for invoice rows.
type InvoiceStore interface {
	Upsert(ctx context.Context, row *models.InvoiceRow) error
	Get(ctx context.Context, tokenID int64) (*models.InvoiceRow, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// PoolStore is the cache surface for pool rows.
type PoolStore interface {
	Upsert(ctx context.Context, row *models.PoolRow) error
	Get(ctx context.Context, poolID int64) (*models.PoolRow, error)
}

// InvestmentStore is the cache surface for investment rows.
type InvestmentStore interface {
	Upsert(ctx context.Context, row *models.InvestmentRow) error
}

// SkipStore persists ids the walker gave up on so they can be re-attempted.
type SkipStore interface {
	Record(ctx context.Context, kind types.EntityKind, entityID int64, reason string) error
	ListPending(ctx context.Context, kind types.EntityKind) ([]models.SkippedID, error)
	Resolve(ctx context.Context, kind types.EntityKind, entityID int64) error
}

// AuditSink receives run history. Optional everywhere: a nil sink disables
// auditing, and sink failures are logged rather than propagated.
type AuditSink interface {
	RecordValidationRun(ctx context.Context, result *models.ValidationResult) error
	RecordBackfillRun(ctx context.Context, report *models.WalkReport, startedAt time.Time) error
}

// Pinger is the reachability probe surface of a store.
type Pinger interface {
	Ping(ctx context.Context) error
}
