package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-sync/internal/models"
)

// PaymentRepository handles payments rows, keyed by invoice_id.
type PaymentRepository struct {
	db *PostgresDB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *PostgresDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Upsert records a payment submission, last write wins per invoice.
func (r *PaymentRepository) Upsert(ctx context.Context, row *models.PaymentRow) error {
	if err := ValidateAddress(row.Payer); err != nil {
		return err
	}
	row.Payer = strings.ToLower(row.Payer)

	query := `
		INSERT INTO payments (
			invoice_id, payer, amount, currency, fx_rate, reference, received_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (invoice_id) DO UPDATE SET
			payer = EXCLUDED.payer,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			fx_rate = EXCLUDED.fx_rate,
			reference = EXCLUDED.reference,
			received_at = EXCLUDED.received_at,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		row.InvoiceID,
		row.Payer,
		row.Amount,
		row.Currency,
		row.FxRate,
		row.Reference,
		row.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment for invoice %d: %w", row.InvoiceID, err)
	}
	return nil
}

// Get retrieves the payment for an invoice, nil without error when absent.
func (r *PaymentRepository) Get(ctx context.Context, invoiceID int64) (*models.PaymentRow, error) {
	query := `
		SELECT invoice_id, payer, amount, currency, fx_rate, reference, received_at, updated_at
		FROM payments
		WHERE invoice_id = $1
	`

	var row models.PaymentRow
	err := r.db.Pool().QueryRow(ctx, query, invoiceID).Scan(
		&row.InvoiceID,
		&row.Payer,
		&row.Amount,
		&row.Currency,
		&row.FxRate,
		&row.Reference,
		&row.ReceivedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment for invoice %d: %w", invoiceID, err)
	}
	return &row, nil
}
