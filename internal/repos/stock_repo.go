package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"shopcore/internal/domain"
)

// ErrStaleStockRow is returned when a guarded UPDATE matches no row, i.e. the
// quantities changed between read and write. With the engine's per-variant
// lock held this cannot happen; seeing it means a writer bypassed the engine.
var ErrStaleStockRow = errors.New("stock row changed underneath update")

type StockRepo struct{ db *sqlx.DB }

func NewStockRepo(db *sqlx.DB) *StockRepo { return &StockRepo{db: db} }

func (r *StockRepo) Beginx() (*sqlx.Tx, error) { return r.db.Beginx() }

// Get reads a stock row outside any transaction (read-committed is fine for
// the read-only paths). Returns sql.ErrNoRows if the variant has no row.
func (r *StockRepo) Get(ctx context.Context, variantID string) (domain.Stock, error) {
	return getStock(ctx, r.db, variantID)
}

// GetTx reads a stock row inside the caller's transaction. The engine holds
// the variant's exclusive lock around this call, so the snapshot is stable
// until commit.
func (r *StockRepo) GetTx(ctx context.Context, tx *sqlx.Tx, variantID string) (domain.Stock, error) {
	return getStock(ctx, tx, variantID)
}

func getStock(ctx context.Context, q sqlx.QueryerContext, variantID string) (domain.Stock, error) {
	var s domain.Stock
	err := sqlx.GetContext(ctx, q, &s, `
		SELECT variant_id, quantity_on_hand, quantity_reserved,
		       created_at, COALESCE(updated_at,'') AS updated_at
		FROM stock
		WHERE variant_id = ?
	`, variantID)
	return s, err
}

// Create inserts the stock row for a newly created variant.
// Returns sql.ErrNoRows mapped upstream; uniqueness violations surface as-is.
func (r *StockRepo) Create(ctx context.Context, tx *sqlx.Tx, variantID string, initialQty int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock(variant_id, quantity_on_hand, quantity_reserved)
		VALUES (?, ?, 0)
	`, variantID, initialQty)
	return err
}

func (r *StockRepo) Exists(ctx context.Context, variantID string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock WHERE variant_id = ?`, variantID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateQuantities writes both counters, guarded on the previously read
// values so a bypassing writer cannot cause a lost update.
func (r *StockRepo) UpdateQuantities(ctx context.Context, tx *sqlx.Tx, variantID string, prev, next domain.Stock) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE stock
		SET quantity_on_hand = ?, quantity_reserved = ?, updated_at = CURRENT_TIMESTAMP
		WHERE variant_id = ? AND quantity_on_hand = ? AND quantity_reserved = ?
	`, next.QuantityOnHand, next.QuantityReserved, variantID, prev.QuantityOnHand, prev.QuantityReserved)
	if err != nil {
		return fmt.Errorf("update stock %s: %w", variantID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrStaleStockRow
	}
	return nil
}

// AppendLedger writes one audit row inside the same transaction as the stock
// mutation it describes. Ledger rows are never updated or deleted.
func (r *StockRepo) AppendLedger(ctx context.Context, tx *sqlx.Tx, e domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_ledger(id, variant_id, operation, quantity_change,
		  before_on_hand, before_reserved, after_on_hand, after_reserved,
		  reason, performed_by, reference_type, reference_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.VariantID, e.Operation, e.QuantityChange,
		e.BeforeOnHand, e.BeforeReserved, e.AfterOnHand, e.AfterReserved,
		e.Reason, e.PerformedBy, e.ReferenceType, e.ReferenceID)
	if err != nil {
		return fmt.Errorf("append ledger %s: %w", e.VariantID, err)
	}
	return nil
}

// ListLedger returns the newest entries for a variant, most recent first.
func (r *StockRepo) ListLedger(ctx context.Context, variantID string, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, variant_id, operation, quantity_change,
		       before_on_hand, before_reserved, after_on_hand, after_reserved,
		       reason, performed_by, reference_type, reference_id, created_at
		FROM stock_ledger
		WHERE variant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, variantID, limit)
	return out, err
}

// Row used by the admin inventory page
type StockRow struct {
	VariantID string `db:"variant_id"`
	SKU       string `db:"sku"`
	Name      string `db:"name"`
	OnHand    int    `db:"quantity_on_hand"`
	Reserved  int    `db:"quantity_reserved"`
	Available int    `db:"available"`
}

// ListAll returns all stock rows with variant names (for /admin/inventory)
func (r *StockRepo) ListAll(ctx context.Context) ([]StockRow, error) {
	var rows []StockRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT s.variant_id, v.sku, v.name, s.quantity_on_hand, s.quantity_reserved,
		       s.quantity_on_hand - s.quantity_reserved AS available
		FROM stock s
		JOIN variants v ON v.id = s.variant_id
		ORDER BY v.name
	`)
	return rows, err
}
