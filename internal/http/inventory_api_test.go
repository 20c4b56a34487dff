package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"shopcore/internal/http/handlers"
	"shopcore/internal/notify"
)

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	schema := `
	CREATE TABLE products(id TEXT PRIMARY KEY, title TEXT, description TEXT,
	  active INTEGER DEFAULT 1, created_at TEXT DEFAULT CURRENT_TIMESTAMP, updated_at TEXT);
	CREATE TABLE variants(id TEXT PRIMARY KEY, product_id TEXT, sku TEXT, name TEXT,
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP, updated_at TEXT);
	CREATE TABLE stock(variant_id TEXT PRIMARY KEY,
	  quantity_on_hand INTEGER NOT NULL DEFAULT 0,
	  quantity_reserved INTEGER NOT NULL DEFAULT 0,
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP, updated_at TEXT);
	CREATE TABLE stock_ledger(id TEXT PRIMARY KEY, variant_id TEXT NOT NULL,
	  operation TEXT NOT NULL, quantity_change INTEGER NOT NULL,
	  before_on_hand INTEGER NOT NULL, before_reserved INTEGER NOT NULL,
	  after_on_hand INTEGER NOT NULL, after_reserved INTEGER NOT NULL,
	  reason TEXT NOT NULL DEFAULT '', performed_by TEXT NOT NULL DEFAULT '',
	  reference_type TEXT NOT NULL DEFAULT '', reference_id TEXT NOT NULL DEFAULT '',
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP);

	INSERT INTO products(id,title) VALUES ('tee','Classic Tee');
	INSERT INTO variants(id,product_id,sku,name) VALUES ('v-red','tee','TEE-R','Tee / Red');
	INSERT INTO stock(variant_id,quantity_on_hand,quantity_reserved) VALUES ('v-red',5,0);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}

	deps := handlers.NewDeps(db, notify.Nop{})
	app := fiber.New()
	app.Use(requestid.New())

	api := app.Group("/api/v1")
	api.Get("/availability", deps.InventoryHandler.Availability)
	api.Get("/stock/:variantId", deps.InventoryHandler.GetStock)
	api.Get("/stock/:variantId/ledger", deps.InventoryHandler.Ledger)
	api.Post("/stock/:variantId/reserve", deps.InventoryHandler.Reserve)
	api.Post("/stock/:variantId/confirm", deps.InventoryHandler.ConfirmSale)
	api.Post("/stock/:variantId/release", deps.InventoryHandler.ReleaseReservation)
	api.Post("/stock/:variantId/adjust", deps.InventoryHandler.AdjustStock)
	api.Post("/stock/reserve-batch", deps.InventoryHandler.ReserveBatch)
	api.Post("/variants", deps.CatalogHandler.CreateVariant)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestStockEndpointRoundTrip(t *testing.T) {
	app := testApp(t)

	resp, body := doJSON(t, app, "GET", "/api/v1/stock/v-red", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("get stock: %d %v", resp.StatusCode, body)
	}
	if body["on_hand"].(float64) != 5 || body["available"].(float64) != 5 {
		t.Fatalf("bad stock body: %v", body)
	}

	resp, body = doJSON(t, app, "POST", "/api/v1/stock/v-red/reserve", map[string]any{
		"qty": 2, "performed_by": "buyer-1", "ref_type": "ORDER", "ref_id": "ord-1",
	})
	if resp.StatusCode != 200 || body["available"].(float64) != 3 {
		t.Fatalf("reserve: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "POST", "/api/v1/stock/v-red/confirm", map[string]any{
		"qty": 2, "performed_by": "payment-webhook",
	})
	if resp.StatusCode != 200 || body["available"].(float64) != 3 {
		t.Fatalf("confirm: %d %v", resp.StatusCode, body)
	}

	// ledger recorded both mutations
	resp, body = doJSON(t, app, "GET", "/api/v1/stock/v-red/ledger", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("ledger: %d %v", resp.StatusCode, body)
	}
	if entries := body["entries"].([]any); len(entries) != 2 {
		t.Fatalf("want 2 ledger entries, got %d", len(entries))
	}
}

func TestErrorKindsMapToStatuses(t *testing.T) {
	app := testApp(t)

	// over-reserve -> 409
	resp, _ := doJSON(t, app, "POST", "/api/v1/stock/v-red/reserve", map[string]any{"qty": 6})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("over-reserve: want 409, got %d", resp.StatusCode)
	}

	// confirm without reservation -> 409
	resp, _ = doJSON(t, app, "POST", "/api/v1/stock/v-red/confirm", map[string]any{"qty": 1})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("confirm w/o reserve: want 409, got %d", resp.StatusCode)
	}

	// unknown variant -> 404
	resp, _ = doJSON(t, app, "POST", "/api/v1/stock/ghost/reserve", map[string]any{"qty": 1})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown variant: want 404, got %d", resp.StatusCode)
	}

	// bad quantity -> 400
	resp, _ = doJSON(t, app, "POST", "/api/v1/stock/v-red/reserve", map[string]any{"qty": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("qty=0: want 400, got %d", resp.StatusCode)
	}

	// adjust below reserved -> 409
	if resp, _ = doJSON(t, app, "POST", "/api/v1/stock/v-red/reserve", map[string]any{"qty": 3}); resp.StatusCode != 200 {
		t.Fatal("setup reserve failed")
	}
	resp, _ = doJSON(t, app, "POST", "/api/v1/stock/v-red/adjust", map[string]any{"on_hand": 2, "performed_by": "admin"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("adjust below reserved: want 409, got %d", resp.StatusCode)
	}
}

func TestBatchEndpointAtomicity(t *testing.T) {
	app := testApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/v1/stock/reserve-batch", map[string]any{
		"items": []map[string]any{
			{"variant_id": "v-red", "qty": 1},
			{"variant_id": "v-red", "qty": 999},
		},
		"performed_by": "order-svc",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}

	// nothing reserved
	resp, body := doJSON(t, app, "GET", "/api/v1/stock/v-red", nil)
	if resp.StatusCode != 200 || body["reserved"].(float64) != 0 {
		t.Fatalf("failed batch left state: %v", body)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	app := testApp(t)

	resp, body := doJSON(t, app, "GET", "/api/v1/availability?variantId=v-red", nil)
	if resp.StatusCode != 200 || body["status"] != "IN_STOCK" {
		t.Fatalf("availability: %d %v", resp.StatusCode, body)
	}

	// unknown ids read as OUT_OF_STOCK, not 404
	resp, body = doJSON(t, app, "GET", "/api/v1/availability?variantId=ghost", nil)
	if resp.StatusCode != 200 || body["status"] != "OUT_OF_STOCK" {
		t.Fatalf("availability ghost: %d %v", resp.StatusCode, body)
	}
}

func TestCreateVariantProvisionsStock(t *testing.T) {
	app := testApp(t)

	resp, body := doJSON(t, app, "POST", "/api/v1/variants", map[string]any{
		"id": "v-new", "product_id": "tee", "sku": "TEE-N", "name": "Tee / New",
		"initial_qty": 7, "performed_by": "catalog-svc",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create variant: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "GET", "/api/v1/stock/v-new", nil)
	if resp.StatusCode != 200 || body["on_hand"].(float64) != 7 {
		t.Fatalf("provisioned stock: %d %v", resp.StatusCode, body)
	}

	// provisioning the same variant twice conflicts
	resp, _ = doJSON(t, app, "POST", "/api/v1/variants", map[string]any{
		"id": "v-new", "product_id": "tee", "sku": "TEE-N2", "name": "Tee / New 2",
		"initial_qty": 1,
	})
	if resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("duplicate variant: got %d", resp.StatusCode)
	}
}
