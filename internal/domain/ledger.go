package domain

// StockOp enumerates the ledger operation types.
type StockOp string

const (
	OpInitialStock       StockOp = "INITIAL_STOCK"
	OpReserve            StockOp = "RESERVE"
	OpConfirmSale        StockOp = "CONFIRM_SALE"
	OpReleaseReservation StockOp = "RELEASE_RESERVATION"
	OpStockAdjustment    StockOp = "STOCK_ADJUSTMENT"
	OpStockIn            StockOp = "STOCK_IN"
	OpStockOut           StockOp = "STOCK_OUT"
)

// LedgerEntry is one immutable row of the stock audit trail. Entries are
// written in the same transaction as the stock mutation they describe and
// are never updated or deleted.
type LedgerEntry struct {
	ID             string  `db:"id"`
	VariantID      string  `db:"variant_id"`
	Operation      StockOp `db:"operation"`
	QuantityChange int     `db:"quantity_change"` // signed delta to on-hand; 0 for reserve/release
	BeforeOnHand   int     `db:"before_on_hand"`
	BeforeReserved int     `db:"before_reserved"`
	AfterOnHand    int     `db:"after_on_hand"`
	AfterReserved  int     `db:"after_reserved"`
	Reason         string  `db:"reason"`
	PerformedBy    string  `db:"performed_by"`
	ReferenceType  string  `db:"reference_type"`
	ReferenceID    string  `db:"reference_id"`
	CreatedAt      string  `db:"created_at"`
}

// Ref ties a ledger entry to the document that caused it, e.g. {"ORDER", orderID}.
// Both fields are opaque to the engine and stored verbatim.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
