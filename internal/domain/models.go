package domain

type Product struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Active      bool   `db:"active"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

// Variant is the sellable configuration of a product (e.g. size/color).
// Stock is tracked per variant, never per product.
type Variant struct {
	ID        string `db:"id"`
	ProductID string `db:"product_id"`
	SKU       string `db:"sku"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// Stock is the persisted quantity state of one variant.
// Invariant after every engine operation: 0 <= QuantityReserved <= QuantityOnHand.
type Stock struct {
	VariantID        string `db:"variant_id"`
	QuantityOnHand   int    `db:"quantity_on_hand"`
	QuantityReserved int    `db:"quantity_reserved"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

// Available is the quantity a new order may still claim.
func (s Stock) Available() int { return s.QuantityOnHand - s.QuantityReserved }

// StockInfo is the read-path view returned to callers.
type StockInfo struct {
	VariantID string `json:"variant_id"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
	InStock   bool   `json:"in_stock"`
}

type Availability struct {
	Status    string `json:"status"` // IN_STOCK | LOW_STOCK | OUT_OF_STOCK
	Available int    `json:"available"`
}
