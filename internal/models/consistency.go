package models

import (
	"time"

	"github.com/ledger-sync/internal/types"
)

// ConsistencyIssue describes one detected drift between cache and ledger.
// Issues are a stateless snapshot: produced on each validator run and either
// consumed by the healer or surfaced to an operator, never persisted as state.
type ConsistencyIssue struct {
	EntityID     int64            `json:"entityId"`
	Kind         types.EntityKind `json:"kind"`
	Type         types.IssueType  `json:"type"`
	Severity     types.Severity   `json:"severity"`
	Description  string           `json:"description"`
	AutoHealable bool             `json:"autoHealable"`
}

// ValidationResult is the outcome of one consistency validation run.
type ValidationResult struct {
	RunID        string             `json:"runId"`
	HealthScore  int                `json:"healthScore"`
	InvoiceCount int                `json:"invoiceCount"`
	Issues       []ConsistencyIssue `json:"issues"`
	IsConsistent bool               `json:"isConsistent"`
	CheckedAt    time.Time          `json:"checkedAt"`
}

// HealthScoreFromIssues derives the 0-100 score from a set of issues.
// The score never increases as a direct result of finding more issues.
func HealthScoreFromIssues(issues []ConsistencyIssue) int {
	score := 100
	for _, issue := range issues {
		score -= issue.Severity.Weight()
	}
	if score < 0 {
		score = 0
	}
	return score
}

// HealFailure reports a single entity the healer could not re-derive.
type HealFailure struct {
	EntityID int64  `json:"entityId"`
	Reason   string `json:"reason"`
}

// HealReport summarizes one auto-heal pass.
type HealReport struct {
	Healed   int           `json:"healed"`
	Failed   int           `json:"failed"`
	Failures []HealFailure `json:"failures,omitempty"`
}

// SystemHealth is the ephemeral result of one probe of both stores.
type SystemHealth struct {
	LedgerReachable bool                  `json:"ledgerReachable"`
	CacheReachable  bool                  `json:"cacheReachable"`
	LedgerLatencyMs int64                 `json:"ledgerLatencyMs"`
	CacheLatencyMs  int64                 `json:"cacheLatencyMs"`
	ConsensusStatus types.ConsensusStatus `json:"consensusStatus"`
	CheckedAt       time.Time             `json:"checkedAt"`
}

// SkippedID records a ledger id the backfill walker could not read after
// bounded retries, so a follow-up pass can re-attempt it.
type SkippedID struct {
	Kind      types.EntityKind `json:"kind"`
	EntityID  int64            `json:"entityId"`
	Reason    string           `json:"reason"`
	SkippedAt time.Time        `json:"skippedAt"`
}

// WalkReport summarizes one backfill walk over a single entity kind.
type WalkReport struct {
	RunID    string           `json:"runId"`
	Kind     types.EntityKind `json:"kind"`
	LastID   int64            `json:"lastId"`
	Written  int              `json:"written"`
	Skipped  []int64          `json:"skipped,omitempty"`
	Duration time.Duration    `json:"duration"`
}
