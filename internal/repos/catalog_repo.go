package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"shopcore/internal/domain"
)

type CatalogRepo struct{ db *sqlx.DB }

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `
		SELECT id, title, description, active, created_at, COALESCE(updated_at,'') AS updated_at
		FROM products
		WHERE id = ?
	`, id)
	return p, err
}

func (r *CatalogRepo) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	var v domain.Variant
	err := r.db.GetContext(ctx, &v, `
		SELECT id, product_id, sku, name, created_at, COALESCE(updated_at,'') AS updated_at
		FROM variants
		WHERE id = ?
	`, id)
	return v, err
}

func (r *CatalogRepo) VariantExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM variants WHERE id = ?`, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CatalogRepo) CreateVariant(ctx context.Context, v domain.Variant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO variants(id, product_id, sku, name)
		VALUES (?, ?, ?, ?)
	`, v.ID, v.ProductID, v.SKU, v.Name)
	return err
}

func (r *CatalogRepo) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	var out []domain.Variant
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, product_id, sku, name, created_at, COALESCE(updated_at,'') AS updated_at
		FROM variants
		WHERE product_id = ?
		ORDER BY name
	`, productID)
	return out, err
}
