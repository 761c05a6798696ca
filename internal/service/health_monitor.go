package service

import (
	"context"
	"time"

	"github.com/ledger-sync/internal/ledger"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// HealthMonitor probes the ledger and the cache for reachability and
// latency, and derives the consensus status that gates write-side behavior.
// Probe never returns an error: unreachability is itself the reported state.
type HealthMonitor struct {
	reader           LedgerReader
	cache            Pinger
	probeTimeout     time.Duration
	latencyThreshold time.Duration
	logger           *logging.Logger
}

// NewHealthMonitor creates a monitor over both stores.
func NewHealthMonitor(reader LedgerReader, cache Pinger, probeTimeout, latencyThreshold time.Duration) *HealthMonitor {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	if latencyThreshold <= 0 {
		latencyThreshold = 2 * time.Second
	}
	return &HealthMonitor{
		reader:           reader,
		cache:            cache,
		probeTimeout:     probeTimeout,
		latencyThreshold: latencyThreshold,
		logger:           logging.GetGlobalLogger(),
	}
}

// Probe issues one lightweight read against each store and reports the
// combined health. Recomputed on every call, never persisted.
func (m *HealthMonitor) Probe(ctx context.Context) *models.SystemHealth {
	health := &models.SystemHealth{CheckedAt: time.Now().UTC()}

	ledgerLatency, ledgerOK := m.probeLedger(ctx)
	health.LedgerReachable = ledgerOK
	health.LedgerLatencyMs = ledgerLatency.Milliseconds()

	cacheLatency, cacheOK := m.probeCache(ctx)
	health.CacheReachable = cacheOK
	health.CacheLatencyMs = cacheLatency.Milliseconds()

	health.ConsensusStatus = deriveConsensus(
		ledgerOK, cacheOK, ledgerLatency, cacheLatency, m.latencyThreshold,
	)

	if health.ConsensusStatus != types.ConsensusHealthy {
		m.logger.WithFields(map[string]interface{}{
			"consensus":       string(health.ConsensusStatus),
			"ledgerReachable": ledgerOK,
			"cacheReachable":  cacheOK,
			"ledgerLatencyMs": health.LedgerLatencyMs,
			"cacheLatencyMs":  health.CacheLatencyMs,
		}).Warn("Store health below healthy")
	}

	return health
}

// probeLedger reads invoice 1. NotFound counts as reachable: an empty ledger
// answered the call, which is all the probe asks.
func (m *HealthMonitor) probeLedger(ctx context.Context) (time.Duration, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := m.reader.GetInvoice(probeCtx, 1)
	elapsed := time.Since(start)

	if err != nil && !ledger.IsNotFound(err) {
		return elapsed, false
	}
	return elapsed, true
}

func (m *HealthMonitor) probeCache(ctx context.Context) (time.Duration, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	err := m.cache.Ping(probeCtx)
	return time.Since(start), err == nil
}

// deriveConsensus maps the probe outcomes to the tri-state status:
// critical iff both stores are unreachable, healthy iff both are reachable
// within the latency threshold, degraded otherwise.
func deriveConsensus(ledgerOK, cacheOK bool, ledgerLatency, cacheLatency, threshold time.Duration) types.ConsensusStatus {
	switch {
	case !ledgerOK && !cacheOK:
		return types.ConsensusCritical
	case !ledgerOK || !cacheOK:
		return types.ConsensusDegraded
	case ledgerLatency > threshold || cacheLatency > threshold:
		return types.ConsensusDegraded
	default:
		return types.ConsensusHealthy
	}
}
