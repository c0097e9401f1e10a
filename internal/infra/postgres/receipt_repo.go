package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quangdm/partake/internal/core/domain"
)

// ReceiptRepo stores participation receipts in PostgreSQL.
type ReceiptRepo struct {
	db *DB
}

// NewReceiptRepo creates a new PostgreSQL receipt repository.
func NewReceiptRepo(db *DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// Save upserts a receipt by run ID.
func (r *ReceiptRepo) Save(ctx context.Context, receipt *domain.Receipt) error {
	const q = `
		INSERT INTO participation_receipts
			(run_id, sale_id, owner, amount, outcome, height, too_old, finished_at)
		VALUES
			(:run_id, :sale_id, :owner, :amount, :outcome, :height, :too_old, :finished_at)
		ON CONFLICT (run_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			height = EXCLUDED.height,
			too_old = EXCLUDED.too_old,
			finished_at = EXCLUDED.finished_at`

	if _, err := r.db.NamedExecContext(ctx, q, receipt); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

// GetByRun retrieves a receipt by run ID, nil when not found.
func (r *ReceiptRepo) GetByRun(ctx context.Context, runID string) (*domain.Receipt, error) {
	const q = `SELECT run_id, sale_id, owner, amount, outcome, height, too_old, finished_at
		FROM participation_receipts WHERE run_id = $1`

	var receipt domain.Receipt
	err := r.db.GetContext(ctx, &receipt, q, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

// ListBySale retrieves all receipts for a sale, newest first.
func (r *ReceiptRepo) ListBySale(ctx context.Context, saleID string) ([]*domain.Receipt, error) {
	const q = `SELECT run_id, sale_id, owner, amount, outcome, height, too_old, finished_at
		FROM participation_receipts WHERE sale_id = $1 ORDER BY finished_at DESC`

	var receipts []*domain.Receipt
	if err := r.db.SelectContext(ctx, &receipts, q, saleID); err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return receipts, nil
}
