package router

import (
	"github.com/gofiber/fiber/v2"
)

// HttpRouter serves the unauthenticated endpoints: health and processor webhooks.
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Webhooks authenticate through the payload signature. Processors retry
	// in bursts, hence the higher limit.
	webhooks := app.Group("/webhooks", newLimiter(h.deps, "webhooks", 5))
	webhooks.Post("/stripe", h.deps.Webhooks.HandleStripeWebhook)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
