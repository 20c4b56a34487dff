package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "shopcore/internal/log"
	"shopcore/internal/repos"
	"shopcore/internal/services"
	"shopcore/internal/validate"
)

type InventoryHandler struct {
	Inv   *services.InventoryService
	Stock *repos.StockRepo
}

type mutationReq struct {
	Qty         int    `json:"qty"`
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
	RefType     string `json:"ref_type"`
	RefID       string `json:"ref_id"`
}

type adjustReq struct {
	OnHand      *int   `json:"on_hand"`
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
}

type batchReq struct {
	Items       []services.BatchItem `json:"items"`
	PerformedBy string               `json:"performed_by"`
	Reason      string               `json:"reason"`
	RefType     string               `json:"ref_type"`
	RefID       string               `json:"ref_id"`
}

// statusFor maps engine error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrVariantNotFound),
		errors.Is(err, services.ErrProductNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidQuantity):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrOutOfStock),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrInsufficientStockForReserved),
		errors.Is(err, services.ErrInvalidOperation),
		errors.Is(err, services.ErrStockExists):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrLockTimeout):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidOperation):
		// caller-side sequencing bug (double confirm/release); log as an
		// inconsistency, not a plain business rejection
		applog.Error(c, action+".inconsistent", err, nil)
	case errors.Is(err, services.ErrInvalidInventoryState):
		// invariant broke past precondition checks: logic defect, alert
		applog.Error(c, action+".invariant_broken", err, nil)
	case statusFor(err) >= fiber.StatusInternalServerError:
		applog.Error(c, action+".fail", err, nil)
	}
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func (h *InventoryHandler) audit(req mutationReq) services.Audit {
	return services.Audit{
		PerformedBy: validate.Actor(req.PerformedBy),
		Reason:      validate.Reason(req.Reason),
		Ref:         refOf(req.RefType, req.RefID),
	}
}

// GET /api/v1/stock/:variantId
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
	}
	info, err := h.Inv.GetStock(c.Context(), id)
	if err != nil {
		return fail(c, "stock.get", err)
	}
	return c.JSON(info)
}

// GET /api/v1/availability?variantId=...
func (h *InventoryHandler) Availability(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Query("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing variantId"})
	}
	avail, err := h.Inv.CheckAvailability(c.Context(), id)
	if err != nil {
		return fail(c, "stock.availability", err)
	}
	return c.JSON(avail)
}

// GET /api/v1/stock/:variantId/low?threshold uses the engine's 10% rule.
func (h *InventoryHandler) LowStock(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
	}
	low, err := h.Inv.IsLowStock(c.Context(), id)
	if err != nil {
		return fail(c, "stock.low", err)
	}
	return c.JSON(fiber.Map{"variant_id": id, "low_stock": low})
}

// GET /api/v1/stock/:variantId/ledger?limit=50
func (h *InventoryHandler) Ledger(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	entries, err := h.Stock.ListLedger(c.Context(), id, limit)
	if err != nil {
		return fail(c, "stock.ledger", err)
	}
	return c.JSON(fiber.Map{"variant_id": id, "entries": entries})
}

func (h *InventoryHandler) mutateOne(c *fiber.Ctx, action string,
	op func(variantID string, qty int, a services.Audit) (int, error)) error {
	id, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
	}
	var req mutationReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Qty < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "qty must be >= 1"})
	}
	avail, err := op(id, req.Qty, h.audit(req))
	if err != nil {
		return fail(c, action, err)
	}
	applog.Audit(c, action, map[string]any{
		"variant": id, "qty": req.Qty, "by": req.PerformedBy, "available": avail,
	})
	return c.JSON(fiber.Map{"variant_id": id, "available": avail})
}

// POST /api/v1/stock/:variantId/reserve
func (h *InventoryHandler) Reserve(c *fiber.Ctx) error {
	return h.mutateOne(c, "stock.reserve", func(id string, qty int, a services.Audit) (int, error) {
		return h.Inv.Reserve(c.Context(), id, qty, a)
	})
}

// POST /api/v1/stock/:variantId/confirm
func (h *InventoryHandler) ConfirmSale(c *fiber.Ctx) error {
	return h.mutateOne(c, "stock.confirm", func(id string, qty int, a services.Audit) (int, error) {
		return h.Inv.ConfirmSale(c.Context(), id, qty, a)
	})
}

// POST /api/v1/stock/:variantId/release
func (h *InventoryHandler) ReleaseReservation(c *fiber.Ctx) error {
	return h.mutateOne(c, "stock.release", func(id string, qty int, a services.Audit) (int, error) {
		return h.Inv.ReleaseReservation(c.Context(), id, qty, a)
	})
}

// POST /api/v1/stock/:variantId/increase
func (h *InventoryHandler) IncreaseStock(c *fiber.Ctx) error {
	return h.mutateOne(c, "stock.increase", func(id string, qty int, a services.Audit) (int, error) {
		return h.Inv.IncreaseStock(c.Context(), id, qty, a)
	})
}

// POST /api/v1/stock/:variantId/decrease
func (h *InventoryHandler) DecreaseStock(c *fiber.Ctx) error {
	return h.mutateOne(c, "stock.decrease", func(id string, qty int, a services.Audit) (int, error) {
		return h.Inv.DecreaseStock(c.Context(), id, qty, a)
	})
}

// POST /api/v1/stock/:variantId/adjust — absolute set, privileged.
func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("variantId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid variant id"})
	}
	var req adjustReq
	if err := c.BodyParser(&req); err != nil || req.OnHand == nil || *req.OnHand < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "on_hand must be >= 0"})
	}
	a := services.Audit{PerformedBy: validate.Actor(req.PerformedBy), Reason: validate.Reason(req.Reason)}
	avail, err := h.Inv.AdjustStock(c.Context(), id, *req.OnHand, a)
	if err != nil {
		return fail(c, "stock.adjust", err)
	}
	applog.Audit(c, "stock.adjust", map[string]any{
		"variant": id, "on_hand": *req.OnHand, "by": req.PerformedBy, "available": avail,
	})
	return c.JSON(fiber.Map{"variant_id": id, "available": avail})
}

func (h *InventoryHandler) mutateBatch(c *fiber.Ctx, action string,
	op func(items []services.BatchItem, a services.Audit) error) error {
	var req batchReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(req.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "items must not be empty"})
	}
	for _, it := range req.Items {
		if _, ok := validate.ID(it.VariantID); !ok || it.Qty < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid batch item"})
		}
	}
	a := services.Audit{
		PerformedBy: validate.Actor(req.PerformedBy),
		Reason:      validate.Reason(req.Reason),
		Ref:         refOf(req.RefType, req.RefID),
	}
	if err := op(req.Items, a); err != nil {
		return fail(c, action, err)
	}
	applog.Audit(c, action, map[string]any{
		"items": len(req.Items), "by": req.PerformedBy, "ref": req.RefType + ":" + req.RefID,
	})
	return c.JSON(fiber.Map{"ok": true})
}

// POST /api/v1/stock/reserve-batch
func (h *InventoryHandler) ReserveBatch(c *fiber.Ctx) error {
	return h.mutateBatch(c, "stock.reserve_batch", func(items []services.BatchItem, a services.Audit) error {
		return h.Inv.ReserveBatch(c.Context(), items, a)
	})
}

// POST /api/v1/stock/confirm-batch
func (h *InventoryHandler) ConfirmSaleBatch(c *fiber.Ctx) error {
	return h.mutateBatch(c, "stock.confirm_batch", func(items []services.BatchItem, a services.Audit) error {
		return h.Inv.ConfirmSaleBatch(c.Context(), items, a)
	})
}

// POST /api/v1/stock/release-batch
func (h *InventoryHandler) ReleaseReservationBatch(c *fiber.Ctx) error {
	return h.mutateBatch(c, "stock.release_batch", func(items []services.BatchItem, a services.Audit) error {
		return h.Inv.ReleaseReservationBatch(c.Context(), items, a)
	})
}
