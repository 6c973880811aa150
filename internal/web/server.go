package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp - fiber с логированием запросов и перехватом паник
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tuition-ledger",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	h.Register(app)
	return app
}
