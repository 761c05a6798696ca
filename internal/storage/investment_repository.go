package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-sync/internal/models"
)

// InvestmentRepository handles investments rows, keyed by
// (pool_id, investor_address).
type InvestmentRepository struct {
	db *PostgresDB
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db *PostgresDB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

// Upsert inserts or updates a row by its composite natural key.
func (r *InvestmentRepository) Upsert(ctx context.Context, row *models.InvestmentRow) error {
	if err := ValidateAddress(row.Investor); err != nil {
		return err
	}
	row.Investor = strings.ToLower(row.Investor)

	query := `
		INSERT INTO investments (
			pool_id, investor_address, amount, percentage, invested_at, claimed,
			contract_address, transaction_hash, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (pool_id, investor_address) DO UPDATE SET
			amount = EXCLUDED.amount,
			percentage = EXCLUDED.percentage,
			invested_at = EXCLUDED.invested_at,
			claimed = EXCLUDED.claimed,
			contract_address = EXCLUDED.contract_address,
			transaction_hash = COALESCE(EXCLUDED.transaction_hash, investments.transaction_hash),
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		row.PoolID,
		row.Investor,
		row.Amount,
		row.Percentage,
		row.Timestamp,
		row.Claimed,
		row.ContractAddress,
		row.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert investment %d/%s: %w", row.PoolID, row.Investor, err)
	}
	return nil
}

// Get retrieves an investment by its composite key, nil without error when absent.
func (r *InvestmentRepository) Get(ctx context.Context, poolID int64, investor string) (*models.InvestmentRow, error) {
	if err := ValidateAddress(investor); err != nil {
		return nil, err
	}
	investor = strings.ToLower(investor)

	query := `
		SELECT pool_id, investor_address, amount, percentage, invested_at, claimed,
			   contract_address, transaction_hash, updated_at
		FROM investments
		WHERE pool_id = $1 AND investor_address = $2
	`

	var row models.InvestmentRow
	err := r.db.Pool().QueryRow(ctx, query, poolID, investor).Scan(
		&row.PoolID,
		&row.Investor,
		&row.Amount,
		&row.Percentage,
		&row.Timestamp,
		&row.Claimed,
		&row.ContractAddress,
		&row.TxHash,
		&row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get investment %d/%s: %w", poolID, investor, err)
	}
	return &row, nil
}

// ListByPool returns every investment row for a pool, ordered by investor
// address for stable display.
func (r *InvestmentRepository) ListByPool(ctx context.Context, poolID int64) ([]*models.InvestmentRow, error) {
	query := `
		SELECT pool_id, investor_address, amount, percentage, invested_at, claimed,
			   contract_address, transaction_hash, updated_at
		FROM investments
		WHERE pool_id = $1
		ORDER BY investor_address
	`

	rows, err := r.db.Pool().Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments for pool %d: %w", poolID, err)
	}
	defer rows.Close()

	var result []*models.InvestmentRow
	for rows.Next() {
		var row models.InvestmentRow
		if err := rows.Scan(
			&row.PoolID,
			&row.Investor,
			&row.Amount,
			&row.Percentage,
			&row.Timestamp,
			&row.Claimed,
			&row.ContractAddress,
			&row.TxHash,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan investment row: %w", err)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}
