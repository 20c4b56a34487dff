package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"shopcore/internal/domain"
	"shopcore/internal/repos"
)

var ErrProductNotFound = errors.New("product not found")

// CatalogService is the thin variant-provisioning collaborator: it creates
// the variant row and asks the inventory engine for the matching stock row.
type CatalogService struct {
	Catalog *repos.CatalogRepo
	Inv     *InventoryService
}

func NewCatalogService(catalog *repos.CatalogRepo, inv *InventoryService) *CatalogService {
	return &CatalogService{Catalog: catalog, Inv: inv}
}

// CreateVariant inserts the variant and provisions its stock record with the
// given initial quantity. The variant id may be supplied or generated.
func (s *CatalogService) CreateVariant(ctx context.Context, v domain.Variant, initialQty int, a Audit) (domain.Variant, error) {
	if _, err := s.Catalog.GetProduct(ctx, v.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, fmt.Errorf("%w: %s", ErrProductNotFound, v.ProductID)
		}
		return domain.Variant{}, err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := s.Catalog.CreateVariant(ctx, v); err != nil {
		return domain.Variant{}, fmt.Errorf("create variant: %w", err)
	}
	if err := s.Inv.CreateInventoryStock(ctx, v.ID, initialQty, a); err != nil {
		return domain.Variant{}, err
	}
	return v, nil
}

func (s *CatalogService) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	return s.Catalog.ListVariants(ctx, productID)
}
