package handlers

import (
	"github.com/gofiber/fiber/v2"

	"shopcore/internal/domain"
	applog "shopcore/internal/log"
	"shopcore/internal/services"
	"shopcore/internal/validate"
)

type CatalogHandler struct {
	Catalog *services.CatalogService
}

type createVariantReq struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	InitialQty  int    `json:"initial_qty"`
	PerformedBy string `json:"performed_by"`
}

// POST /api/v1/variants — creates a variant and provisions its stock record.
func (h *CatalogHandler) CreateVariant(c *fiber.Ctx) error {
	var req createVariantReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	pid, okPID := validate.ID(req.ProductID)
	sku, okSKU := validate.SKU(req.SKU)
	name, okName := validate.Name(req.Name)
	if !okPID || !okSKU || !okName || req.InitialQty < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if req.ID != "" {
		if _, ok := validate.ID(req.ID); !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
		}
	}

	a := services.Audit{PerformedBy: validate.Actor(req.PerformedBy), Reason: "variant created"}
	v, err := h.Catalog.CreateVariant(c.Context(), domain.Variant{
		ID: req.ID, ProductID: pid, SKU: sku, Name: name,
	}, req.InitialQty, a)
	if err != nil {
		return fail(c, "catalog.variant.create", err)
	}
	applog.Audit(c, "catalog.variant.create", map[string]any{
		"variant": v.ID, "product": pid, "initial_qty": req.InitialQty, "by": req.PerformedBy,
	})
	return c.Status(fiber.StatusCreated).JSON(v)
}

// GET /api/v1/products/:id/variants
func (h *CatalogHandler) ListVariants(c *fiber.Ctx) error {
	pid, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	out, err := h.Catalog.ListVariants(c.Context(), pid)
	if err != nil {
		return fail(c, "catalog.variant.list", err)
	}
	return c.JSON(fiber.Map{"product_id": pid, "variants": out})
}
