package storage

import (
	"context"
	"fmt"

	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

// SkipRepository persists ledger ids the backfill walker could not read
// after bounded retries, so a follow-up pass can re-attempt them instead of
// leaving a permanent silent gap.
type SkipRepository struct {
	db *PostgresDB
}

// NewSkipRepository creates a new skip repository
func NewSkipRepository(db *PostgresDB) *SkipRepository {
	return &SkipRepository{db: db}
}

// Record stores a skipped id. Repeated skips of the same id update the
// reason and timestamp rather than adding rows.
func (r *SkipRepository) Record(ctx context.Context, kind types.EntityKind, entityID int64, reason string) error {
	query := `
		INSERT INTO backfill_skips (entity_kind, entity_id, reason, skipped_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (entity_kind, entity_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			skipped_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query, kind, entityID, reason)
	if err != nil {
		return fmt.Errorf("failed to record skipped %s %d: %w", kind, entityID, err)
	}
	return nil
}

// ListPending returns the skipped ids for a kind, ascending.
func (r *SkipRepository) ListPending(ctx context.Context, kind types.EntityKind) ([]models.SkippedID, error) {
	query := `
		SELECT entity_kind, entity_id, reason, skipped_at
		FROM backfill_skips
		WHERE entity_kind = $1
		ORDER BY entity_id
	`

	rows, err := r.db.Pool().Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list skipped %s ids: %w", kind, err)
	}
	defer rows.Close()

	var skips []models.SkippedID
	for rows.Next() {
		var s models.SkippedID
		if err := rows.Scan(&s.Kind, &s.EntityID, &s.Reason, &s.SkippedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skipped id: %w", err)
		}
		skips = append(skips, s)
	}
	return skips, rows.Err()
}

// Resolve removes a skipped id once a re-walk has read it successfully.
func (r *SkipRepository) Resolve(ctx context.Context, kind types.EntityKind, entityID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM backfill_skips WHERE entity_kind = $1 AND entity_id = $2`,
		kind, entityID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve skipped %s %d: %w", kind, entityID, err)
	}
	return nil
}
