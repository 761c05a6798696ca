package models

import (
	"math/big"
	"time"
)

// Investment is the decoded on-chain position of an investor in a pool.
// Identity is composite: (pool id, investor address).
type Investment struct {
	PoolID     int64     `json:"poolId"`
	Investor   string    `json:"investor"`
	Amount     *big.Int  `json:"amount"`
	Percentage *big.Int  `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
	Claimed    bool      `json:"claimed"`
}

// InvestmentRow is the investments cache projection, keyed by
// (pool_id, investor_address).
type InvestmentRow struct {
	PoolID          int64     `json:"poolId"`
	Investor        string    `json:"investor"`
	Amount          string    `json:"amount"`
	Percentage      string    `json:"percentage"`
	Timestamp       time.Time `json:"timestamp"`
	Claimed         bool      `json:"claimed"`
	ContractAddress string    `json:"contractAddress"`
	TxHash          *string   `json:"txHash,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InvestmentRowFromLedger maps a decoded investment to its cache projection.
func InvestmentRowFromLedger(inv *Investment, contractAddress string) *InvestmentRow {
	return &InvestmentRow{
		PoolID:          inv.PoolID,
		Investor:        inv.Investor,
		Amount:          bigString(inv.Amount),
		Percentage:      bigString(inv.Percentage),
		Timestamp:       inv.Timestamp,
		Claimed:         inv.Claimed,
		ContractAddress: contractAddress,
	}
}
