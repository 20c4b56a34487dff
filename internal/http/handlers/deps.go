package handlers

import (
	"github.com/jmoiron/sqlx"

	"shopcore/internal/domain"
	"shopcore/internal/notify"
	"shopcore/internal/repos"
	"shopcore/internal/services"
)

type Deps struct {
	InventoryHandler *InventoryHandler
	CatalogHandler   *CatalogHandler
	AdminHandler     *AdminHandler
}

func NewDeps(db *sqlx.DB, notifier notify.Notifier) *Deps {
	stockRepo := repos.NewStockRepo(db)
	catRepo := repos.NewCatalogRepo(db)

	invSvc := services.NewInventoryService(stockRepo, catRepo, notifier)
	catSvc := services.NewCatalogService(catRepo, invSvc)

	return &Deps{
		InventoryHandler: &InventoryHandler{Inv: invSvc, Stock: stockRepo},
		CatalogHandler:   &CatalogHandler{Catalog: catSvc},
		AdminHandler:     &AdminHandler{Inv: invSvc, Stock: stockRepo},
	}
}

func refOf(refType, refID string) domain.Ref {
	if refType == "" && refID == "" {
		return domain.Ref{}
	}
	return domain.Ref{Type: refType, ID: refID}
}
