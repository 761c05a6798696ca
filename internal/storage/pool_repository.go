package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-sync/internal/models"
)

// PoolRepository handles pool_metadata rows, keyed by pool_id.
type PoolRepository struct {
	db *PostgresDB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *PostgresDB) *PoolRepository {
	return &PoolRepository{db: db}
}

// Upsert inserts or updates a row by pool id, last write wins.
func (r *PoolRepository) Upsert(ctx context.Context, row *models.PoolRow) error {
	query := `
		INSERT INTO pool_metadata (
			pool_id, name, start_date, end_date, total_loan_amount, total_shipping_amount,
			amount_invested, amount_distributed, fee_paid, status, invoice_ids,
			contract_address, transaction_hash, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (pool_id) DO UPDATE SET
			name = EXCLUDED.name,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			total_loan_amount = EXCLUDED.total_loan_amount,
			total_shipping_amount = EXCLUDED.total_shipping_amount,
			amount_invested = EXCLUDED.amount_invested,
			amount_distributed = EXCLUDED.amount_distributed,
			fee_paid = EXCLUDED.fee_paid,
			status = EXCLUDED.status,
			invoice_ids = EXCLUDED.invoice_ids,
			contract_address = EXCLUDED.contract_address,
			transaction_hash = COALESCE(EXCLUDED.transaction_hash, pool_metadata.transaction_hash),
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		row.PoolID,
		row.Name,
		row.StartDate,
		row.EndDate,
		row.TotalLoanAmount,
		row.TotalShippingAmount,
		row.AmountInvested,
		row.AmountDistributed,
		row.FeePaid,
		row.Status,
		row.InvoiceIDs,
		row.ContractAddress,
		row.TxHash,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pool %d: %w", row.PoolID, err)
	}
	return nil
}

// Get retrieves a pool row by id, returning nil without error when absent.
func (r *PoolRepository) Get(ctx context.Context, poolID int64) (*models.PoolRow, error) {
	query := `
		SELECT pool_id, name, start_date, end_date, total_loan_amount, total_shipping_amount,
			   amount_invested, amount_distributed, fee_paid, status, invoice_ids,
			   contract_address, transaction_hash, created_at, updated_at
		FROM pool_metadata
		WHERE pool_id = $1
	`

	var row models.PoolRow
	err := r.db.Pool().QueryRow(ctx, query, poolID).Scan(
		&row.PoolID,
		&row.Name,
		&row.StartDate,
		&row.EndDate,
		&row.TotalLoanAmount,
		&row.TotalShippingAmount,
		&row.AmountInvested,
		&row.AmountDistributed,
		&row.FeePaid,
		&row.Status,
		&row.InvoiceIDs,
		&row.ContractAddress,
		&row.TxHash,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pool %d: %w", poolID, err)
	}
	return &row, nil
}

// ListIDs returns every pool id present in the cache, ascending.
func (r *PoolRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT pool_id FROM pool_metadata ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pool id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
