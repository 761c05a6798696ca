package models

import "time"

// PaymentRow records a payment submission against an invoice, keyed by
// invoice_id. Payments are cache-owned: the subsystem gates their acceptance
// on store health but does not push them to the ledger.
type PaymentRow struct {
	InvoiceID  int64     `json:"invoiceId"`
	Payer      string    `json:"payer"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	FxRate     *string   `json:"fxRate,omitempty"`
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"receivedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
