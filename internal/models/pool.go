package models

import (
	"math/big"
	"time"

	"github.com/ledger-sync/internal/types"
)

// Pool is the decoded on-chain representation of a funding pool.
type Pool struct {
	PoolID              int64            `json:"poolId"`
	Name                string           `json:"name"`
	StartDate           time.Time        `json:"startDate"`
	EndDate             time.Time        `json:"endDate"`
	TotalLoanAmount     *big.Int         `json:"totalLoanAmount"`
	TotalShippingAmount *big.Int         `json:"totalShippingAmount"`
	AmountInvested      *big.Int         `json:"amountInvested"`
	AmountDistributed   *big.Int         `json:"amountDistributed"`
	FeePaid             *big.Int         `json:"feePaid"`
	Status              types.PoolStatus `json:"status"`
	InvoiceIDs          []int64          `json:"invoiceIds"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// PoolRow is the pool_metadata cache projection, keyed by pool_id.
type PoolRow struct {
	PoolID              int64            `json:"poolId"`
	Name                string           `json:"name"`
	StartDate           time.Time        `json:"startDate"`
	EndDate             time.Time        `json:"endDate"`
	TotalLoanAmount     string           `json:"totalLoanAmount"`
	TotalShippingAmount string           `json:"totalShippingAmount"`
	AmountInvested      string           `json:"amountInvested"`
	AmountDistributed   string           `json:"amountDistributed"`
	FeePaid             string           `json:"feePaid"`
	Status              types.PoolStatus `json:"status"`
	InvoiceIDs          []int64          `json:"invoiceIds"`
	ContractAddress     string           `json:"contractAddress"`
	TxHash              *string          `json:"txHash,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// PoolView is the read-API projection of a pool.
type PoolView struct {
	PoolID            int64            `json:"poolId"`
	Name              string           `json:"name"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
	TotalLoanAmount   string           `json:"totalLoanAmount"`
	AmountInvested    string           `json:"amountInvested"`
	AmountDistributed string           `json:"amountDistributed"`
	Status            types.PoolStatus `json:"status"`
	InvoiceIDs        []int64          `json:"invoiceIds"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// ViewFromPool projects a decoded ledger pool into the API shape.
func ViewFromPool(p *Pool) *PoolView {
	return &PoolView{
		PoolID:            p.PoolID,
		Name:              p.Name,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		TotalLoanAmount:   bigString(p.TotalLoanAmount),
		AmountInvested:    bigString(p.AmountInvested),
		AmountDistributed: bigString(p.AmountDistributed),
		Status:            p.Status,
		InvoiceIDs:        p.InvoiceIDs,
		CreatedAt:         p.CreatedAt,
	}
}

// ViewFromPoolRow projects a cache row into the API shape.
func ViewFromPoolRow(row *PoolRow) *PoolView {
	return &PoolView{
		PoolID:            row.PoolID,
		Name:              row.Name,
		StartDate:         row.StartDate,
		EndDate:           row.EndDate,
		TotalLoanAmount:   row.TotalLoanAmount,
		AmountInvested:    row.AmountInvested,
		AmountDistributed: row.AmountDistributed,
		Status:            row.Status,
		InvoiceIDs:        row.InvoiceIDs,
		CreatedAt:         row.CreatedAt,
	}
}

// PoolRowFromLedger maps a decoded pool to its cache projection.
func PoolRowFromLedger(p *Pool, contractAddress string) *PoolRow {
	return &PoolRow{
		PoolID:              p.PoolID,
		Name:                p.Name,
		StartDate:           p.StartDate,
		EndDate:             p.EndDate,
		TotalLoanAmount:     bigString(p.TotalLoanAmount),
		TotalShippingAmount: bigString(p.TotalShippingAmount),
		AmountInvested:      bigString(p.AmountInvested),
		AmountDistributed:   bigString(p.AmountDistributed),
		FeePaid:             bigString(p.FeePaid),
		Status:              p.Status,
		InvoiceIDs:          p.InvoiceIDs,
		ContractAddress:     contractAddress,
		CreatedAt:           p.CreatedAt,
	}
}
