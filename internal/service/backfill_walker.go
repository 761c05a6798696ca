package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/retry"
	"github.com/ledger-sync/internal/types"
	"golang.org/x/time/rate"
)

// BackfillWalker copies ledger entities into the cache by scanning
// sequentially allocated ids until the sentinel (non-existent) record is
// observed. The ledger exposes no count accessor, so the sentinel is the
// only termination signal; enumeration within a kind is strictly sequential
// so an id is only trusted as the end once its predecessor has been seen.
type BackfillWalker struct {
	reader      LedgerReader
	invoices    InvoiceStore
	pools       PoolStore
	investments InvestmentStore
	skips       SkipStore
	audit       AuditSink
	limiter     *rate.Limiter
	retryCfg    *retry.Config
	maxIters    int
	logger      *logging.Logger
}

// WalkerConfig configures a BackfillWalker.
type WalkerConfig struct {
	// MaxIterations is the hard safety cap on ids visited in one walk,
	// preventing a runaway loop against a misbehaving ledger.
	MaxIterations int
	// RetryAttempts bounds retries of a transiently failing read before the
	// id is recorded as skipped and the walk advances.
	RetryAttempts int
	// RetryDelay is the initial backoff delay between retries.
	RetryDelay time.Duration
	// RatePerSecond throttles ledger reads; zero disables throttling.
	RatePerSecond float64
}

// NewBackfillWalker creates a walker over all three entity kinds.
// audit may be nil.
func NewBackfillWalker(
	reader LedgerReader,
	invoices InvoiceStore,
	pools PoolStore,
	investments InvestmentStore,
	skips SkipStore,
	audit AuditSink,
	cfg WalkerConfig,
) *BackfillWalker {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1000
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &BackfillWalker{
		reader:      reader,
		invoices:    invoices,
		pools:       pools,
		investments: investments,
		skips:       skips,
		audit:       audit,
		limiter:     limiter,
		retryCfg: &retry.Config{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		maxIters: cfg.MaxIterations,
		logger:   logging.GetGlobalLogger(),
	}
}

// wait blocks until the rate limiter admits the next ledger read.
func (w *BackfillWalker) wait(ctx context.Context) error {
	if w.limiter == nil {
		return nil
	}
	return w.limiter.Wait(ctx)
}

// readWithRetry runs fn under the walker's bounded-retry policy. A sentinel
// (NotFound) result is terminal and is never retried.
func (w *BackfillWalker) readWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var terminal error
	result := retry.WithExponentialBackoff(ctx, w.retryCfg, func(ctx context.Context, attempt int) error {
		err := fn(ctx)
		if err != nil && ledger.IsNotFound(err) {
			terminal = err
			return nil
		}
		return err
	})
	if terminal != nil {
		return terminal
	}
	if !result.Success {
		return result.LastError
	}
	return nil
}

// recordSkip persists a skipped id so a follow-up pass can re-attempt it.
func (w *BackfillWalker) recordSkip(ctx context.Context, report *models.WalkReport, kind types.EntityKind, id int64, cause error) {
	report.Skipped = append(report.Skipped, id)
	w.logger.WithFields(map[string]interface{}{
		"kind":  string(kind),
		"id":    id,
		"error": cause.Error(),
	}).Warn("Skipping unreadable ledger id after bounded retries")

	if err := w.skips.Record(ctx, kind, id, cause.Error()); err != nil {
		w.logger.WithError(err).Error("Failed to persist skipped id")
	}
}

// finishReport stamps the report and appends it to the audit sink.
func (w *BackfillWalker) finishReport(ctx context.Context, report *models.WalkReport, startedAt time.Time) {
	report.Duration = time.Since(startedAt)
	w.logger.WithFields(map[string]interface{}{
		"kind":    string(report.Kind),
		"lastId":  report.LastID,
		"written": report.Written,
		"skipped": len(report.Skipped),
	}).Info("Backfill walk finished")

	if w.audit != nil {
		if err := w.audit.RecordBackfillRun(ctx, report, startedAt); err != nil {
			w.logger.WithError(err).Warn("Failed to record backfill run in audit sink")
		}
	}
}

// WalkInvoices scans invoice ids from 1 until the sentinel and upserts each
// existing invoice's cache projection. The walk is a pure function of ledger
// state, so re-running it over an unchanged range reproduces the same cache.
func (w *BackfillWalker) WalkInvoices(ctx context.Context) (*models.WalkReport, error) {
	report := &models.WalkReport{RunID: uuid.NewString(), Kind: types.KindInvoice}
	startedAt := time.Now()
	defer w.finishReport(ctx, report, startedAt)

	for id := int64(1); ; id++ {
		if id > int64(w.maxIters) {
			w.logger.WithField("cap", w.maxIters).Warn("Invoice walk hit hard iteration cap before sentinel")
			return report, nil
		}
		if err := w.wait(ctx); err != nil {
			return report, err
		}

		var inv *models.Invoice
		err := w.readWithRetry(ctx, func(ctx context.Context) error {
			got, err := w.reader.GetInvoice(ctx, id)
			if err != nil {
				return err
			}
			inv = got
			return nil
		})
		if ledger.IsNotFound(err) {
			return report, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			w.recordSkip(ctx, report, types.KindInvoice, id, err)
			continue
		}

		row := models.InvoiceRowFromLedger(inv, w.reader.ContractAddress())
		if err := w.invoices.Upsert(ctx, row); err != nil {
			return report, fmt.Errorf("invoice walk aborted at id %d: %w", id, err)
		}
		report.Written++
		report.LastID = id
	}
}

// WalkPools scans pool ids from 1 until the sentinel.
func (w *BackfillWalker) WalkPools(ctx context.Context) (*models.WalkReport, error) {
	report := &models.WalkReport{RunID: uuid.NewString(), Kind: types.KindPool}
	startedAt := time.Now()
	defer w.finishReport(ctx, report, startedAt)

	for id := int64(1); ; id++ {
		if id > int64(w.maxIters) {
			w.logger.WithField("cap", w.maxIters).Warn("Pool walk hit hard iteration cap before sentinel")
			return report, nil
		}
		if err := w.wait(ctx); err != nil {
			return report, err
		}

		var pool *models.Pool
		err := w.readWithRetry(ctx, func(ctx context.Context) error {
			got, err := w.reader.GetPool(ctx, id)
			if err != nil {
				return err
			}
			pool = got
			return nil
		})
		if ledger.IsNotFound(err) {
			return report, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			w.recordSkip(ctx, report, types.KindPool, id, err)
			continue
		}

		row := models.PoolRowFromLedger(pool, w.reader.ContractAddress())
		if err := w.pools.Upsert(ctx, row); err != nil {
			return report, fmt.Errorf("pool walk aborted at id %d: %w", id, err)
		}
		report.Written++
		report.LastID = id
	}
}

// WalkInvestments enumerates pools until the sentinel and, for each existing
// pool, copies one investment per investor. The investor list is itself
// authoritative and bounded, so no sentinel applies inside a pool.
func (w *BackfillWalker) WalkInvestments(ctx context.Context) (*models.WalkReport, error) {
	report := &models.WalkReport{RunID: uuid.NewString(), Kind: types.KindInvestment}
	startedAt := time.Now()
	defer w.finishReport(ctx, report, startedAt)

	for poolID := int64(1); ; poolID++ {
		if poolID > int64(w.maxIters) {
			w.logger.WithField("cap", w.maxIters).Warn("Investment walk hit hard iteration cap before sentinel")
			return report, nil
		}
		if err := w.wait(ctx); err != nil {
			return report, err
		}

		_, err := w.reader.GetPool(ctx, poolID)
		if ledger.IsNotFound(err) {
			return report, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			w.recordSkip(ctx, report, types.KindInvestment, poolID, err)
			continue
		}

		written, _, err := w.walkPoolInvestments(ctx, report, poolID)
		if err != nil {
			return report, err
		}
		report.Written += written
		report.LastID = poolID
	}
}

// walkPoolInvestments copies every investor position of one pool. The
// second return reports whether any read was skipped, so a re-walk knows
// the pool's skip record must stay.
func (w *BackfillWalker) walkPoolInvestments(ctx context.Context, report *models.WalkReport, poolID int64) (int, bool, error) {
	var investors []string
	err := w.readWithRetry(ctx, func(ctx context.Context) error {
		got, err := w.reader.GetPoolInvestors(ctx, poolID)
		if err != nil {
			return err
		}
		investors = got
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		w.recordSkip(ctx, report, types.KindInvestment, poolID, err)
		return 0, true, nil
	}

	written := 0
	skipped := false
	for _, investor := range investors {
		if err := w.wait(ctx); err != nil {
			return written, skipped, err
		}

		var inv *models.Investment
		err := w.readWithRetry(ctx, func(ctx context.Context) error {
			got, err := w.reader.GetInvestment(ctx, poolID, investor)
			if err != nil {
				return err
			}
			inv = got
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return written, skipped, ctx.Err()
			}
			w.recordSkip(ctx, report, types.KindInvestment, poolID,
				fmt.Errorf("investor %s: %w", investor, err))
			skipped = true
			continue
		}

		row := models.InvestmentRowFromLedger(inv, w.reader.ContractAddress())
		if err := w.investments.Upsert(ctx, row); err != nil {
			return written, skipped, fmt.Errorf("investment walk aborted at pool %d: %w", poolID, err)
		}
		written++
	}
	return written, skipped, nil
}

// WalkAll runs the three walks in sequence. Walks could run concurrently
// across kinds, but sequencing keeps load on the rate-limited endpoint
// predictable.
func (w *BackfillWalker) WalkAll(ctx context.Context) ([]*models.WalkReport, error) {
	var reports []*models.WalkReport

	invoices, err := w.WalkInvoices(ctx)
	if err != nil {
		return reports, err
	}
	reports = append(reports, invoices)

	pools, err := w.WalkPools(ctx)
	if err != nil {
		return reports, err
	}
	reports = append(reports, pools)

	investments, err := w.WalkInvestments(ctx)
	if err != nil {
		return reports, err
	}
	reports = append(reports, investments)

	return reports, nil
}

// RewalkSkipped re-attempts previously skipped ids of one kind. Ids that now
// read successfully (or turn out to be past the end of the range) are
// resolved; ids that fail again stay recorded.
func (w *BackfillWalker) RewalkSkipped(ctx context.Context, kind types.EntityKind) (*models.WalkReport, error) {
	report := &models.WalkReport{RunID: uuid.NewString(), Kind: kind}
	startedAt := time.Now()
	defer w.finishReport(ctx, report, startedAt)

	pending, err := w.skips.ListPending(ctx, kind)
	if err != nil {
		return report, err
	}

	for _, skip := range pending {
		if err := w.wait(ctx); err != nil {
			return report, err
		}

		healed, clean, err := w.rewalkOne(ctx, kind, skip.EntityID)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Skipped = append(report.Skipped, skip.EntityID)
			continue
		}

		report.Written += healed
		report.LastID = skip.EntityID
		if !clean {
			// The re-walk re-recorded a skip under this id; resolving
			// now would delete it and leave a permanent silent gap.
			report.Skipped = append(report.Skipped, skip.EntityID)
			continue
		}
		if err := w.skips.Resolve(ctx, kind, skip.EntityID); err != nil {
			w.logger.WithError(err).Error("Failed to resolve skipped id")
		}
	}
	return report, nil
}

// rewalkOne re-reads a single skipped id and upserts what it finds.
// A NotFound result means the id was past the end of the allocated range and
// there is nothing to write. The second return is false when the re-walk
// left a skip of its own behind.
func (w *BackfillWalker) rewalkOne(ctx context.Context, kind types.EntityKind, id int64) (int, bool, error) {
	switch kind {
	case types.KindInvoice:
		inv, err := w.reader.GetInvoice(ctx, id)
		if ledger.IsNotFound(err) {
			return 0, true, nil
		}
		if err != nil {
			return 0, false, err
		}
		if err := w.invoices.Upsert(ctx, models.InvoiceRowFromLedger(inv, w.reader.ContractAddress())); err != nil {
			return 0, false, err
		}
		return 1, true, nil

	case types.KindPool:
		pool, err := w.reader.GetPool(ctx, id)
		if ledger.IsNotFound(err) {
			return 0, true, nil
		}
		if err != nil {
			return 0, false, err
		}
		if err := w.pools.Upsert(ctx, models.PoolRowFromLedger(pool, w.reader.ContractAddress())); err != nil {
			return 0, false, err
		}
		return 1, true, nil

	case types.KindInvestment:
		// Skips for investments are recorded per pool.
		_, err := w.reader.GetPool(ctx, id)
		if ledger.IsNotFound(err) {
			return 0, true, nil
		}
		if err != nil {
			return 0, false, err
		}
		report := &models.WalkReport{RunID: uuid.NewString(), Kind: kind}
		written, skipped, err := w.walkPoolInvestments(ctx, report, id)
		return written, !skipped, err

	default:
		return 0, false, fmt.Errorf("unknown entity kind: %s", kind)
	}
}
