// Package models defines ledger entity projections and cache row shapes.
package models

import (
	"math/big"
	"time"

	"github.com/ledger-sync/internal/types"
)

// Invoice is the decoded on-chain representation of a tokenized invoice.
// Amounts are integer minor units as returned by the contract.
type Invoice struct {
	TokenID         int64               `json:"tokenId"`
	Exporter        string              `json:"exporter"`
	ExporterCompany string              `json:"exporterCompany"`
	ImporterCompany string              `json:"importerCompany"`
	ImporterEmail   string              `json:"importerEmail"`
	ShippingDate    time.Time           `json:"shippingDate"`
	ShippingAmount  *big.Int            `json:"shippingAmount"`
	LoanAmount      *big.Int            `json:"loanAmount"`
	AmountInvested  *big.Int            `json:"amountInvested"`
	AmountWithdrawn *big.Int            `json:"amountWithdrawn"`
	Status          types.InvoiceStatus `json:"status"`
	PoolID          *int64              `json:"poolId,omitempty"`
	IPFSHash        string              `json:"ipfsHash"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// InvoiceRow is the invoice_metadata cache projection, keyed by token_id.
// Rows are derived from ledger state; Description and TxHash are cache-only.
type InvoiceRow struct {
	TokenID         int64               `json:"tokenId"`
	Exporter        string              `json:"exporter"`
	ExporterCompany string              `json:"exporterCompany"`
	ImporterCompany string              `json:"importerCompany"`
	ImporterEmail   string              `json:"importerEmail"`
	ShippingDate    time.Time           `json:"shippingDate"`
	ShippingAmount  string              `json:"shippingAmount"`
	LoanAmount      string              `json:"loanAmount"`
	AmountInvested  string              `json:"amountInvested"`
	AmountWithdrawn string              `json:"amountWithdrawn"`
	Status          types.InvoiceStatus `json:"status"`
	PoolID          *int64              `json:"poolId,omitempty"`
	IPFSHash        string              `json:"ipfsHash"`
	CreatedAt       time.Time           `json:"createdAt"`
	Description     *string             `json:"description,omitempty"`
	ContractAddress string              `json:"contractAddress"`
	TxHash          *string             `json:"txHash,omitempty"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// InvoiceView is the read-API projection of an invoice, assembled by the
// resolver from ledger fields, cache fields, or both.
type InvoiceView struct {
	TokenID         int64               `json:"tokenId"`
	Exporter        string              `json:"exporter"`
	ExporterCompany string              `json:"exporterCompany"`
	ImporterCompany string              `json:"importerCompany"`
	ImporterEmail   string              `json:"importerEmail,omitempty"`
	ShippingAmount  string              `json:"shippingAmount"`
	LoanAmount      string              `json:"loanAmount"`
	AmountInvested  string              `json:"amountInvested"`
	AmountWithdrawn string              `json:"amountWithdrawn"`
	Status          types.InvoiceStatus `json:"status"`
	PoolID          *int64              `json:"poolId,omitempty"`
	IPFSHash        string              `json:"ipfsHash,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	Description     *string             `json:"description,omitempty"`
	TxHash          *string             `json:"txHash,omitempty"`
}

// ViewFromInvoice projects a decoded ledger invoice into the API shape.
func ViewFromInvoice(inv *Invoice) *InvoiceView {
	return &InvoiceView{
		TokenID:         inv.TokenID,
		Exporter:        inv.Exporter,
		ExporterCompany: inv.ExporterCompany,
		ImporterCompany: inv.ImporterCompany,
		ImporterEmail:   inv.ImporterEmail,
		ShippingAmount:  bigString(inv.ShippingAmount),
		LoanAmount:      bigString(inv.LoanAmount),
		AmountInvested:  bigString(inv.AmountInvested),
		AmountWithdrawn: bigString(inv.AmountWithdrawn),
		Status:          inv.Status,
		PoolID:          inv.PoolID,
		IPFSHash:        inv.IPFSHash,
		CreatedAt:       inv.CreatedAt,
	}
}

// ViewFromInvoiceRow projects a cache row into the API shape.
func ViewFromInvoiceRow(row *InvoiceRow) *InvoiceView {
	return &InvoiceView{
		TokenID:         row.TokenID,
		Exporter:        row.Exporter,
		ExporterCompany: row.ExporterCompany,
		ImporterCompany: row.ImporterCompany,
		ImporterEmail:   row.ImporterEmail,
		ShippingAmount:  row.ShippingAmount,
		LoanAmount:      row.LoanAmount,
		AmountInvested:  row.AmountInvested,
		AmountWithdrawn: row.AmountWithdrawn,
		Status:          row.Status,
		PoolID:          row.PoolID,
		IPFSHash:        row.IPFSHash,
		CreatedAt:       row.CreatedAt,
		Description:     row.Description,
		TxHash:          row.TxHash,
	}
}

// InvoiceRowFromLedger maps a decoded invoice to its cache projection.
// The mapping is a pure function of ledger state plus the contract address,
// which keeps backfill runs idempotent. UpdatedAt is owned by the store.
func InvoiceRowFromLedger(inv *Invoice, contractAddress string) *InvoiceRow {
	return &InvoiceRow{
		TokenID:         inv.TokenID,
		Exporter:        inv.Exporter,
		ExporterCompany: inv.ExporterCompany,
		ImporterCompany: inv.ImporterCompany,
		ImporterEmail:   inv.ImporterEmail,
		ShippingDate:    inv.ShippingDate,
		ShippingAmount:  bigString(inv.ShippingAmount),
		LoanAmount:      bigString(inv.LoanAmount),
		AmountInvested:  bigString(inv.AmountInvested),
		AmountWithdrawn: bigString(inv.AmountWithdrawn),
		Status:          inv.Status,
		PoolID:          inv.PoolID,
		IPFSHash:        inv.IPFSHash,
		CreatedAt:       inv.CreatedAt,
		ContractAddress: contractAddress,
	}
}

// bigString renders an amount as a decimal string, treating nil as zero.
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
