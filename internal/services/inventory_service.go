package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"shopcore/internal/domain"
	"shopcore/internal/notify"
	"shopcore/internal/repos"
)

var (
	// ErrNotFound: no stock record exists for the variant.
	ErrNotFound = errors.New("stock record not found")
	// ErrVariantNotFound: the variant itself does not exist (provisioning).
	ErrVariantNotFound = errors.New("variant not found")
	// ErrStockExists: a stock record was already provisioned for the variant.
	ErrStockExists = errors.New("stock record already exists")
	// ErrOutOfStock: reserve asked for more than is available.
	ErrOutOfStock = errors.New("insufficient available stock")
	// ErrInvalidOperation: confirm/release asked for more than is reserved.
	// Indicates a caller-side sequencing bug (e.g. double confirmation).
	ErrInvalidOperation = errors.New("quantity exceeds reserved stock")
	// ErrInsufficientStock: a decrease would cut into reserved units.
	ErrInsufficientStock = errors.New("insufficient unreserved stock")
	// ErrInsufficientStockForReserved: an adjustment would drop on-hand below
	// already-reserved units.
	ErrInsufficientStockForReserved = errors.New("adjustment below reserved stock")
	// ErrInvalidInventoryState: the post-mutation invariant failed. Must never
	// happen when preconditions are checked; treat as a logic defect.
	ErrInvalidInventoryState = errors.New("invalid inventory state")
	// ErrInvalidQuantity: non-positive quantity or negative target.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Audit carries the caller identity and document reference recorded with
// every ledger entry. All fields are opaque strings, stored verbatim.
type Audit struct {
	PerformedBy string
	Reason      string
	Ref         domain.Ref
}

// BatchItem is one (variant, quantity) line of a batch operation.
type BatchItem struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

// lowStockFraction: a variant is low when available <= onHand/10.
const lowStockDivisor = 10

// InventoryService is the sole mutator of stock records. Every mutation runs
// under the variant's exclusive lock and inside one DB transaction that also
// appends the ledger entry, so concurrent callers either see the whole effect
// or none of it.
type InventoryService struct {
	Stock   *repos.StockRepo
	Catalog *repos.CatalogRepo
	Notify  notify.Notifier

	locks *lockTable
}

func NewInventoryService(stock *repos.StockRepo, catalog *repos.CatalogRepo, n notify.Notifier) *InventoryService {
	if n == nil {
		n = notify.Nop{}
	}
	return &InventoryService{Stock: stock, Catalog: catalog, Notify: n, locks: newLockTable()}
}

// ---------- single-item operations ----------

// Reserve holds qty units against an unconfirmed order. On-hand is untouched.
// Returns the updated available quantity.
func (s *InventoryService) Reserve(ctx context.Context, variantID string, qty int, a Audit) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpReserve, a, reserveStep(qty))
}

// ConfirmSale turns a reservation into a deduction: on-hand and reserved both
// drop by qty. Called on payment confirmation.
func (s *InventoryService) ConfirmSale(ctx context.Context, variantID string, qty int, a Audit) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpConfirmSale, a, confirmStep(qty))
}

// ReleaseReservation returns qty reserved units to the available pool.
// Called on cancellation or order expiry.
func (s *InventoryService) ReleaseReservation(ctx context.Context, variantID string, qty int, a Audit) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpReleaseReservation, a, releaseStep(qty))
}

// AdjustStock sets on-hand to an absolute value (stocktake correction).
// Privileged; rejected if the target is below currently reserved units.
func (s *InventoryService) AdjustStock(ctx context.Context, variantID string, newOnHand int, a Audit) (int, error) {
	if newOnHand < 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpStockAdjustment, a, func(cur domain.Stock) (domain.Stock, error) {
		if newOnHand < cur.QuantityReserved {
			return cur, fmt.Errorf("%w: variant %s target %d reserved %d",
				ErrInsufficientStockForReserved, variantID, newOnHand, cur.QuantityReserved)
		}
		cur.QuantityOnHand = newOnHand
		return cur, nil
	})
}

// IncreaseStock adds restocked units to on-hand.
func (s *InventoryService) IncreaseStock(ctx context.Context, variantID string, qty int, a Audit) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpStockIn, a, func(cur domain.Stock) (domain.Stock, error) {
		cur.QuantityOnHand += qty
		return cur, nil
	})
}

// DecreaseStock removes units sold outside the reservation flow (offline
// sale, damage write-off). Never allowed to cut into reserved units.
func (s *InventoryService) DecreaseStock(ctx context.Context, variantID string, qty int, a Audit) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return s.mutate(ctx, variantID, domain.OpStockOut, a, func(cur domain.Stock) (domain.Stock, error) {
		if cur.Available() < qty {
			return cur, fmt.Errorf("%w: variant %s need %d available %d (reserved %d)",
				ErrInsufficientStock, variantID, qty, cur.Available(), cur.QuantityReserved)
		}
		cur.QuantityOnHand -= qty
		return cur, nil
	})
}

// ---------- batch operations ----------

func (s *InventoryService) ReserveBatch(ctx context.Context, items []BatchItem, a Audit) error {
	return s.mutateBatch(ctx, domain.OpReserve, items, a, reserveStep)
}

func (s *InventoryService) ConfirmSaleBatch(ctx context.Context, items []BatchItem, a Audit) error {
	return s.mutateBatch(ctx, domain.OpConfirmSale, items, a, confirmStep)
}

func (s *InventoryService) ReleaseReservationBatch(ctx context.Context, items []BatchItem, a Audit) error {
	return s.mutateBatch(ctx, domain.OpReleaseReservation, items, a, releaseStep)
}

// ---------- provisioning ----------

// CreateInventoryStock creates the stock row for a newly created variant.
// Invoked once by the catalog when the variant is created.
func (s *InventoryService) CreateInventoryStock(ctx context.Context, variantID string, initialQty int, a Audit) error {
	if initialQty < 0 {
		return ErrInvalidQuantity
	}
	ok, err := s.Catalog.VariantExists(ctx, variantID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}

	release, err := s.locks.acquire(ctx, []string{variantID})
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.Stock.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.Stock.GetTx(ctx, tx, variantID); err == nil {
		return fmt.Errorf("%w: %s", ErrStockExists, variantID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if err := s.Stock.Create(ctx, tx, variantID, initialQty); err != nil {
		return fmt.Errorf("create stock %s: %w", variantID, err)
	}
	next := domain.Stock{VariantID: variantID, QuantityOnHand: initialQty}
	entry := newLedgerEntry(variantID, domain.OpInitialStock, domain.Stock{}, next, a)
	if err := s.Stock.AppendLedger(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Notify.StockChanged(ctx, stockEvent(variantID, domain.OpInitialStock, next))
	return nil
}

// ---------- read paths (no exclusive lock) ----------

func (s *InventoryService) GetStock(ctx context.Context, variantID string) (domain.StockInfo, error) {
	st, err := s.Stock.Get(ctx, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockInfo{}, fmt.Errorf("%w: %s", ErrNotFound, variantID)
		}
		return domain.StockInfo{}, err
	}
	return domain.StockInfo{
		VariantID: st.VariantID,
		OnHand:    st.QuantityOnHand,
		Reserved:  st.QuantityReserved,
		Available: st.Available(),
		InStock:   st.Available() > 0,
	}, nil
}

func (s *InventoryService) GetAvailableStock(ctx context.Context, variantID string) (int, error) {
	info, err := s.GetStock(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return info.Available, nil
}

func (s *InventoryService) HasAvailableStock(ctx context.Context, variantID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	avail, err := s.GetAvailableStock(ctx, variantID)
	if err != nil {
		return false, err
	}
	return avail >= qty, nil
}

// IsLowStock reports whether available has fallen to 10% of on-hand or less.
// A variant with nothing on hand is out of stock, not low.
func (s *InventoryService) IsLowStock(ctx context.Context, variantID string) (bool, error) {
	info, err := s.GetStock(ctx, variantID)
	if err != nil {
		return false, err
	}
	return info.OnHand > 0 && info.Available*lowStockDivisor <= info.OnHand, nil
}

// CheckAvailability maps stock state onto the storefront availability enum.
// Missing rows read as OUT_OF_STOCK rather than an error.
func (s *InventoryService) CheckAvailability(ctx context.Context, variantID string) (domain.Availability, error) {
	info, err := s.GetStock(ctx, variantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Availability{Status: "OUT_OF_STOCK"}, nil
		}
		return domain.Availability{}, err
	}
	status := "OUT_OF_STOCK"
	switch {
	case info.Available > 0 && info.Available*lowStockDivisor <= info.OnHand:
		status = "LOW_STOCK"
	case info.Available > 0:
		status = "IN_STOCK"
	}
	return domain.Availability{Status: status, Available: info.Available}, nil
}

// ---------- internals ----------

type stepFunc func(domain.Stock) (domain.Stock, error)

func reserveStep(qty int) stepFunc {
	return func(cur domain.Stock) (domain.Stock, error) {
		if cur.Available() < qty {
			return cur, fmt.Errorf("%w: variant %s need %d available %d",
				ErrOutOfStock, cur.VariantID, qty, cur.Available())
		}
		cur.QuantityReserved += qty
		return cur, nil
	}
}

func confirmStep(qty int) stepFunc {
	return func(cur domain.Stock) (domain.Stock, error) {
		if cur.QuantityReserved < qty {
			return cur, fmt.Errorf("%w: confirm %d on variant %s with %d reserved",
				ErrInvalidOperation, qty, cur.VariantID, cur.QuantityReserved)
		}
		cur.QuantityOnHand -= qty
		cur.QuantityReserved -= qty
		return cur, nil
	}
}

func releaseStep(qty int) stepFunc {
	return func(cur domain.Stock) (domain.Stock, error) {
		if cur.QuantityReserved < qty {
			return cur, fmt.Errorf("%w: release %d on variant %s with %d reserved",
				ErrInvalidOperation, qty, cur.VariantID, cur.QuantityReserved)
		}
		cur.QuantityReserved -= qty
		return cur, nil
	}
}

// mutate runs one operation: lock, transact, read, step, invariant check,
// write, ledger, commit, notify. Any failure rolls back with no partial effect.
func (s *InventoryService) mutate(ctx context.Context, variantID string, op domain.StockOp, a Audit, step stepFunc) (int, error) {
	release, err := s.locks.acquire(ctx, []string{variantID})
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := s.Stock.Beginx()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.readForUpdate(ctx, tx, variantID)
	if err != nil {
		return 0, err
	}
	next, err := step(cur)
	if err != nil {
		return 0, err
	}
	if err := checkInvariant(next); err != nil {
		return 0, err
	}
	if err := s.Stock.UpdateQuantities(ctx, tx, variantID, cur, next); err != nil {
		return 0, err
	}
	if err := s.Stock.AppendLedger(ctx, tx, newLedgerEntry(variantID, op, cur, next, a)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.Notify.StockChanged(ctx, stockEvent(variantID, op, next))
	return next.Available(), nil
}

// mutateBatch applies one operation to several variants all-or-nothing.
// Duplicate lines for the same variant are merged, the distinct ids are
// sorted, and all locks are taken in that order in a single pass; every
// precondition is validated before anything is written.
func (s *InventoryService) mutateBatch(ctx context.Context, op domain.StockOp, items []BatchItem, a Audit, step func(int) stepFunc) error {
	if len(items) == 0 {
		return nil
	}
	merged := make(map[string]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return fmt.Errorf("%w: %s qty %d", ErrInvalidQuantity, it.VariantID, it.Qty)
		}
		merged[it.VariantID] += it.Qty
	}
	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	release, err := s.locks.acquire(ctx, ids)
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.Stock.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// validate everything before mutating anything
	curs := make([]domain.Stock, len(ids))
	nexts := make([]domain.Stock, len(ids))
	for i, id := range ids {
		cur, err := s.readForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := step(merged[id])(cur)
		if err != nil {
			return err
		}
		if err := checkInvariant(next); err != nil {
			return err
		}
		curs[i], nexts[i] = cur, next
	}
	for i, id := range ids {
		if err := s.Stock.UpdateQuantities(ctx, tx, id, curs[i], nexts[i]); err != nil {
			return err
		}
		if err := s.Stock.AppendLedger(ctx, tx, newLedgerEntry(id, op, curs[i], nexts[i], a)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for i, id := range ids {
		s.Notify.StockChanged(ctx, stockEvent(id, op, nexts[i]))
	}
	return nil
}

func (s *InventoryService) readForUpdate(ctx context.Context, tx *sqlx.Tx, variantID string) (domain.Stock, error) {
	cur, err := s.Stock.GetTx(ctx, tx, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stock{}, fmt.Errorf("%w: %s", ErrNotFound, variantID)
		}
		return domain.Stock{}, err
	}
	return cur, nil
}

func checkInvariant(st domain.Stock) error {
	if st.QuantityReserved < 0 || st.QuantityReserved > st.QuantityOnHand {
		return fmt.Errorf("%w: variant %s on_hand=%d reserved=%d",
			ErrInvalidInventoryState, st.VariantID, st.QuantityOnHand, st.QuantityReserved)
	}
	return nil
}

func newLedgerEntry(variantID string, op domain.StockOp, before, after domain.Stock, a Audit) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             uuid.NewString(),
		VariantID:      variantID,
		Operation:      op,
		QuantityChange: after.QuantityOnHand - before.QuantityOnHand,
		BeforeOnHand:   before.QuantityOnHand,
		BeforeReserved: before.QuantityReserved,
		AfterOnHand:    after.QuantityOnHand,
		AfterReserved:  after.QuantityReserved,
		Reason:         a.Reason,
		PerformedBy:    a.PerformedBy,
		ReferenceType:  a.Ref.Type,
		ReferenceID:    a.Ref.ID,
	}
}

func stockEvent(variantID string, op domain.StockOp, st domain.Stock) notify.Event {
	return notify.Event{
		VariantID: variantID,
		Operation: op,
		OnHand:    st.QuantityOnHand,
		Reserved:  st.QuantityReserved,
		Available: st.Available(),
	}
}
