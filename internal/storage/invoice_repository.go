package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// hexAddressRegex matches 0x followed by 40 hexadecimal characters
var hexAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAddress validates an EVM address format
func ValidateAddress(address string) error {
	if !hexAddressRegex.MatchString(address) {
		return &types.ServiceError{
			Code:    "INVALID_ADDRESS_FORMAT",
			Message: fmt.Sprintf("invalid address format: %s (must be 0x followed by 40 hexadecimal characters)", address),
			Details: map[string]any{
				"address": address,
			},
		}
	}
	return nil
}

// InvoiceRepository handles invoice_metadata rows, keyed by token_id.
type InvoiceRepository struct {
	db *PostgresDB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *PostgresDB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Upsert inserts or updates a row by its natural key. Safe to call
// repeatedly for the same id: last write wins, the ledger is authoritative.
// The cache-only description column is preserved on conflict.
func (r *InvoiceRepository) Upsert(ctx context.Context, row *models.InvoiceRow) error {
	if err := ValidateAddress(row.Exporter); err != nil {
		return err
	}
	row.Exporter = strings.ToLower(row.Exporter)

	query := `
		INSERT INTO invoice_metadata (
			token_id, exporter, exporter_company, importer_company, importer_email,
			shipping_date, shipping_amount, loan_amount, amount_invested, amount_withdrawn,
			status, pool_id, ipfs_hash, created_at, contract_address, transaction_hash, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			exporter = EXCLUDED.exporter,
			exporter_company = EXCLUDED.exporter_company,
			importer_company = EXCLUDED.importer_company,
			importer_email = EXCLUDED.importer_email,
			shipping_date = EXCLUDED.shipping_date,
			shipping_amount = EXCLUDED.shipping_amount,
			loan_amount = EXCLUDED.loan_amount,
			amount_invested = EXCLUDED.amount_invested,
			amount_withdrawn = EXCLUDED.amount_withdrawn,
			status = EXCLUDED.status,
			pool_id = EXCLUDED.pool_id,
			ipfs_hash = EXCLUDED.ipfs_hash,
			created_at = EXCLUDED.created_at,
			contract_address = EXCLUDED.contract_address,
			transaction_hash = COALESCE(EXCLUDED.transaction_hash, invoice_metadata.transaction_hash),
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		row.TokenID,
		row.Exporter,
		row.ExporterCompany,
		row.ImporterCompany,
		row.ImporterEmail,
		row.ShippingDate,
		row.ShippingAmount,
		row.LoanAmount,
		row.AmountInvested,
		row.AmountWithdrawn,
		row.Status,
		row.PoolID,
		row.IPFSHash,
		row.CreatedAt,
		row.ContractAddress,
		row.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert invoice %d: %w", row.TokenID, err)
	}
	return nil
}

const invoiceColumns = `
	token_id, exporter, exporter_company, importer_company, importer_email,
	shipping_date, shipping_amount, loan_amount, amount_invested, amount_withdrawn,
	status, pool_id, ipfs_hash, created_at, description, contract_address,
	transaction_hash, updated_at
`

func scanInvoiceRow(scanner pgx.Row) (*models.InvoiceRow, error) {
	var row models.InvoiceRow
	err := scanner.Scan(
		&row.TokenID,
		&row.Exporter,
		&row.ExporterCompany,
		&row.ImporterCompany,
		&row.ImporterEmail,
		&row.ShippingDate,
		&row.ShippingAmount,
		&row.LoanAmount,
		&row.AmountInvested,
		&row.AmountWithdrawn,
		&row.Status,
		&row.PoolID,
		&row.IPFSHash,
		&row.CreatedAt,
		&row.Description,
		&row.ContractAddress,
		&row.TxHash,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Get retrieves an invoice row by token id, returning nil without error when
// the row does not exist.
func (r *InvoiceRepository) Get(ctx context.Context, tokenID int64) (*models.InvoiceRow, error) {
	query := `SELECT` + invoiceColumns + `FROM invoice_metadata WHERE token_id = $1`

	row, err := scanInvoiceRow(r.db.Pool().QueryRow(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice %d: %w", tokenID, err)
	}
	return row, nil
}

// ListIDs returns every token id present in the cache, ascending. This is the
// bounded entity set the consistency validator walks.
func (r *InvoiceRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT token_id FROM invoice_metadata ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan invoice id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryByStatus returns invoice rows with the given status, newest first.
// Ordering is for display only and carries no correctness weight.
func (r *InvoiceRepository) QueryByStatus(ctx context.Context, status types.InvoiceStatus, limit int) ([]*models.InvoiceRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT` + invoiceColumns + `
		FROM invoice_metadata
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices by status: %w", err)
	}
	defer rows.Close()

	var result []*models.InvoiceRow
	for rows.Next() {
		row, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SetDescription updates the cache-only description column. Descriptions are
// operator-entered and are never derived from ledger state.
func (r *InvoiceRepository) SetDescription(ctx context.Context, tokenID int64, description string) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE invoice_metadata SET description = $2, updated_at = NOW() WHERE token_id = $1`,
		tokenID, description,
	)
	if err != nil {
		return fmt.Errorf("failed to set invoice description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    "INVOICE_NOT_FOUND",
			Message: fmt.Sprintf("invoice %d not found in cache", tokenID),
		}
	}
	return nil
}
