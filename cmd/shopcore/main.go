package main

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"
	rd "github.com/redis/go-redis/v9"

	"shopcore/internal/config"
	"shopcore/internal/http/handlers"
	applog "shopcore/internal/log"
	"shopcore/internal/notify"
	"shopcore/internal/repos"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			applog.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	// Stock-changed notifications; caches subscribe, the engine just emits.
	var notifier notify.Notifier = notify.Nop{}
	if cfg.RedisAddr != "" {
		rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		notifier = notify.NewRedis(rdb, cfg.StockChannel)
		log.Printf("[notify] publishing stock events to %s on %s", cfg.StockChannel, cfg.RedisAddr)
	}

	// Templates & app
	engine := html.New("./web/templates", ".html")

	app := fiber.New(fiber.Config{
		Views: engine,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Error(c, "server.error", err, nil)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "something went wrong, please try again",
			})
		},
	})
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
	}))

	deps := handlers.NewDeps(db, notifier)

	// ---------- API ----------
	api := app.Group("/api/v1")

	availLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Get("/availability", availLimiter, deps.InventoryHandler.Availability)

	api.Get("/stock/:variantId", deps.InventoryHandler.GetStock)
	api.Get("/stock/:variantId/low", deps.InventoryHandler.LowStock)
	api.Get("/stock/:variantId/ledger", deps.InventoryHandler.Ledger)

	api.Post("/stock/:variantId/reserve", deps.InventoryHandler.Reserve)
	api.Post("/stock/:variantId/confirm", deps.InventoryHandler.ConfirmSale)
	api.Post("/stock/:variantId/release", deps.InventoryHandler.ReleaseReservation)
	api.Post("/stock/:variantId/increase", deps.InventoryHandler.IncreaseStock)
	api.Post("/stock/:variantId/decrease", deps.InventoryHandler.DecreaseStock)
	api.Post("/stock/:variantId/adjust", deps.InventoryHandler.AdjustStock)

	api.Post("/stock/reserve-batch", deps.InventoryHandler.ReserveBatch)
	api.Post("/stock/confirm-batch", deps.InventoryHandler.ConfirmSaleBatch)
	api.Post("/stock/release-batch", deps.InventoryHandler.ReleaseReservationBatch)

	api.Post("/variants", deps.CatalogHandler.CreateVariant)
	api.Get("/products/:id/variants", deps.CatalogHandler.ListVariants)

	// ---------- Admin pages ----------
	admin := app.Group("/admin", csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", nil)
			return c.Status(fiber.StatusForbidden).SendString("Security check failed. Please refresh and try again.")
		},
	}), func(c *fiber.Ctx) error {
		if tok := c.Locals("csrf"); tok != nil {
			c.Locals("CSRFToken", tok.(string))
		}
		return c.Next()
	})
	admin.Get("/inventory", deps.AdminHandler.Inventory)
	admin.Post("/inventory", deps.AdminHandler.AdjustInventory)
	admin.Get("/inventory/:variantId/ledger", deps.AdminHandler.Ledger)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	})

	log.Fatal(app.Listen(":" + cfg.Port))
}
