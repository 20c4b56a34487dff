package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "shopcore/internal/log"
	"shopcore/internal/repos"
	"shopcore/internal/services"
	"shopcore/internal/validate"
)

type AdminHandler struct {
	Inv   *services.InventoryService
	Stock *repos.StockRepo
}

// GET /admin/inventory
func (h *AdminHandler) Inventory(c *fiber.Ctx) error {
	rows, err := h.Stock.ListAll(c.Context())
	if err != nil {
		applog.Error(c, "admin.inventory.list.fail", err, nil)
		return c.Status(500).Render("notfound", fiber.Map{"Message": "Could not load inventory"})
	}
	return render(c, "admin_inventory", fiber.Map{"Rows": rows})
}

// POST /admin/inventory — absolute stock adjustment through the engine.
func (h *AdminHandler) AdjustInventory(c *fiber.Ctx) error {
	vid, okID := validate.ID(c.FormValue("variant_id"))
	onHand, okQty := validate.NonNegative(c.FormValue("on_hand"))
	by := validate.Actor(c.FormValue("performed_by"))
	reason := validate.Reason(c.FormValue("reason"))
	if !okID || !okQty || by == "" {
		return c.Status(400).SendString("invalid input")
	}

	a := services.Audit{PerformedBy: by, Reason: reason}
	if _, err := h.Inv.AdjustStock(c.Context(), vid, onHand, a); err != nil {
		applog.Error(c, "admin.inventory.adjust.fail", err, map[string]any{"variant": vid, "on_hand": onHand})
		return c.Status(statusFor(err)).SendString("could not adjust stock")
	}
	applog.Audit(c, "admin.inventory.adjust", map[string]any{"variant": vid, "on_hand": onHand, "by": by})
	return c.Redirect("/admin/inventory")
}

// GET /admin/inventory/:variantId/ledger — recent audit trail for one variant.
func (h *AdminHandler) Ledger(c *fiber.Ctx) error {
	vid, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(400).SendString("invalid variant id")
	}
	entries, err := h.Stock.ListLedger(c.Context(), vid, 100)
	if err != nil {
		applog.Error(c, "admin.inventory.ledger.fail", err, map[string]any{"variant": vid})
		return c.Status(500).Render("notfound", fiber.Map{"Message": "Could not load ledger"})
	}
	return render(c, "admin_ledger", fiber.Map{"VariantID": vid, "Entries": entries})
}
