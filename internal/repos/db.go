package repos

import (
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	// WAL + busy_timeout keep concurrent readers from tripping over the writer.
	db, err := sqlx.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout=5000&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one pooled conn avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Seed baseline catalog + stock if DB is empty (idempotent)
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
-- Products
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_title ON products(LOWER(title));

-- Variants (the unit stock is tracked against)
CREATE TABLE IF NOT EXISTS variants(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_sku ON variants(sku);
CREATE INDEX IF NOT EXISTS idx_variants_product ON variants(product_id);

-- Stock: one row per variant, mutated only by the inventory engine
CREATE TABLE IF NOT EXISTS stock(
  variant_id TEXT PRIMARY KEY REFERENCES variants(id) ON DELETE RESTRICT,
  quantity_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
  quantity_reserved INTEGER NOT NULL DEFAULT 0
    CHECK (quantity_reserved >= 0 AND quantity_reserved <= quantity_on_hand),
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);

-- Stock ledger: append-only audit trail, one row per successful mutation
CREATE TABLE IF NOT EXISTS stock_ledger(
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL REFERENCES variants(id),
  operation TEXT NOT NULL CHECK (operation IN
    ('INITIAL_STOCK','RESERVE','CONFIRM_SALE','RELEASE_RESERVATION',
     'STOCK_ADJUSTMENT','STOCK_IN','STOCK_OUT')),
  quantity_change INTEGER NOT NULL,
  before_on_hand INTEGER NOT NULL,
  before_reserved INTEGER NOT NULL,
  after_on_hand INTEGER NOT NULL,
  after_reserved INTEGER NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  performed_by TEXT NOT NULL DEFAULT '',
  reference_type TEXT NOT NULL DEFAULT '',
  reference_id TEXT NOT NULL DEFAULT '',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ledger_variant ON stock_ledger(variant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_ref ON stock_ledger(reference_type, reference_id);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products/variants/stock")

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	tx.MustExec(`INSERT INTO products(id,title,description) VALUES
	  ('tee-classic','Classic Tee','Plain crew-neck t-shirt'),
	  ('hoodie-zip','Zip Hoodie','Full-zip fleece hoodie')`)

	tx.MustExec(`INSERT INTO variants(id,product_id,sku,name) VALUES
	  ('tee-classic-s','tee-classic','TEE-CL-S','Classic Tee / S'),
	  ('tee-classic-m','tee-classic','TEE-CL-M','Classic Tee / M'),
	  ('hoodie-zip-m','hoodie-zip','HD-ZIP-M','Zip Hoodie / M')`)

	tx.MustExec(`INSERT INTO stock(variant_id,quantity_on_hand,quantity_reserved) VALUES
	  ('tee-classic-s',25,0),
	  ('tee-classic-m',40,0),
	  ('hoodie-zip-m',0,0)`)

	tx.MustExec(`INSERT INTO stock_ledger(id,variant_id,operation,quantity_change,
	    before_on_hand,before_reserved,after_on_hand,after_reserved,reason,performed_by) VALUES
	  ('seed-tee-classic-s','tee-classic-s','INITIAL_STOCK',25,0,0,25,0,'seed','system'),
	  ('seed-tee-classic-m','tee-classic-m','INITIAL_STOCK',40,0,0,40,0,'seed','system'),
	  ('seed-hoodie-zip-m','hoodie-zip-m','INITIAL_STOCK',0,0,0,0,0,'seed','system')`)

	return tx.Commit()
}
