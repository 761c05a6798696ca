// Package types provides common type definitions for the ledger sync system.
package types

// EntityKind identifies the kind of ledger entity being synchronized.
type EntityKind string

const (
	// KindInvoice represents tokenized trade invoices
	KindInvoice EntityKind = "invoice"
	// KindPool represents funding pools
	KindPool EntityKind = "pool"
	// KindInvestment represents per-investor positions in a pool
	KindInvestment EntityKind = "investment"
)

// InvoiceStatus represents the lifecycle status of an invoice on the ledger
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceApproved  InvoiceStatus = "APPROVED"
	InvoiceInPool    InvoiceStatus = "IN_POOL"
	InvoiceFunded    InvoiceStatus = "FUNDED"
	InvoiceWithdrawn InvoiceStatus = "WITHDRAWN"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCompleted InvoiceStatus = "COMPLETED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
	InvoiceRejected  InvoiceStatus = "REJECTED"
)

// invoiceStatusCodes maps the on-chain uint8 status codes to statuses,
// in contract declaration order.
var invoiceStatusCodes = []InvoiceStatus{
	InvoicePending,
	InvoiceApproved,
	InvoiceInPool,
	InvoiceFunded,
	InvoiceWithdrawn,
	InvoicePaid,
	InvoiceCompleted,
	InvoiceCancelled,
	InvoiceRejected,
}

// InvoiceStatusFromCode decodes an on-chain status code.
// Unknown codes map to PENDING so a contract upgrade cannot crash decoding;
// the validator will surface the drift instead.
func InvoiceStatusFromCode(code uint8) InvoiceStatus {
	if int(code) < len(invoiceStatusCodes) {
		return invoiceStatusCodes[code]
	}
	return InvoicePending
}

// Valid reports whether s is one of the known invoice statuses.
func (s InvoiceStatus) Valid() bool {
	for _, known := range invoiceStatusCodes {
		if s == known {
			return true
		}
	}
	return false
}

// Rank returns the position of a status in the invoice lifecycle.
// Terminal failure states (CANCELLED, REJECTED) sit outside the happy path
// and rank 0 so a transition into them is never treated as "one step behind".
func (s InvoiceStatus) Rank() int {
	switch s {
	case InvoicePending:
		return 1
	case InvoiceApproved:
		return 2
	case InvoiceInPool:
		return 3
	case InvoiceFunded:
		return 4
	case InvoiceWithdrawn:
		return 5
	case InvoicePaid:
		return 6
	case InvoiceCompleted:
		return 7
	default:
		return 0
	}
}

// PoolStatus represents the lifecycle status of a funding pool
type PoolStatus string

const (
	PoolOpen            PoolStatus = "OPEN"
	PoolFundraising     PoolStatus = "FUNDRAISING"
	PoolPartiallyFunded PoolStatus = "PARTIALLY_FUNDED"
	PoolFunded          PoolStatus = "FUNDED"
	PoolCompleted       PoolStatus = "COMPLETED"
	PoolCancelled       PoolStatus = "CANCELLED"
)

var poolStatusCodes = []PoolStatus{
	PoolOpen,
	PoolFundraising,
	PoolPartiallyFunded,
	PoolFunded,
	PoolCompleted,
	PoolCancelled,
}

// PoolStatusFromCode decodes an on-chain pool status code.
func PoolStatusFromCode(code uint8) PoolStatus {
	if int(code) < len(poolStatusCodes) {
		return poolStatusCodes[code]
	}
	return PoolOpen
}

// DataSource identifies which tier answered a resolved read
type DataSource string

const (
	// SourceContract means the ledger answered directly
	SourceContract DataSource = "contract"
	// SourceDatabase means the off-chain cache answered after a ledger failure
	SourceDatabase DataSource = "database"
	// SourceHybrid means ledger fields were merged with cache-only fields
	SourceHybrid DataSource = "hybrid"
	// SourceMock means neither store had data and a static placeholder was returned
	SourceMock DataSource = "mock"
)

// Severity classifies a consistency issue
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the health-score penalty for a severity.
// Exact weights are tunable policy but must stay monotonic in severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 7
	case SeverityCritical:
		return 15
	default:
		return 0
	}
}

// ConsensusStatus is the tri-state summary of both stores' reachability
type ConsensusStatus string

const (
	ConsensusHealthy  ConsensusStatus = "healthy"
	ConsensusDegraded ConsensusStatus = "degraded"
	ConsensusCritical ConsensusStatus = "critical"
)

// IssueType identifies the class of drift a consistency issue describes
type IssueType string

const (
	// IssueMissingFromCache means the ledger has the entity but the cache does not
	IssueMissingFromCache IssueType = "missing_from_cache"
	// IssueMissingFromLedger means the cache has a row the ledger does not know
	IssueMissingFromLedger IssueType = "missing_from_ledger"
	// IssueStatusLag means the cache status is one lifecycle step behind the ledger
	IssueStatusLag IssueType = "status_lag"
	// IssueStatusConflict means the cache status contradicts the lifecycle ordering
	IssueStatusConflict IssueType = "status_conflict"
	// IssueAmountLag means a cached amount trails the ledger within tolerance
	IssueAmountLag IssueType = "amount_lag"
	// IssueAmountDrift means a cached amount diverges beyond tolerance
	IssueAmountDrift IssueType = "amount_drift"
	// IssueInvariantViolation means the cache row violates a ledger invariant on its own
	IssueInvariantViolation IssueType = "invariant_violation"
	// IssueCosmetic means descriptive metadata differs without financial impact
	IssueCosmetic IssueType = "cosmetic"
	// IssueUnverifiable means the ledger could not be reached for this entity
	IssueUnverifiable IssueType = "unverifiable"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
