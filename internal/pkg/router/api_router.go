package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/SubTrack/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", newLimiter(h.deps, "api", 1))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.APIToken))

	subs := h.deps.Subscriptions
	v1.Post("/subscriptions", subs.HandleCreate)
	v1.Get("/subscriptions/:id", subs.HandleGet)
	v1.Post("/subscriptions/:id/renew", subs.HandleRenew)
	v1.Post("/subscriptions/:id/snooze", subs.HandleSnooze)
	v1.Post("/subscriptions/:id/reschedule", subs.HandleReschedule)
	v1.Post("/subscriptions/:id/mark-paid", subs.HandleMarkPaid)
	v1.Post("/subscriptions/:id/cancel", subs.HandleCancel)
	v1.Get("/users/:id/subscriptions", subs.HandleListForUser)
	v1.Get("/teams/:id/subscriptions", subs.HandleListForTeam)

	v1.Post("/reminders/dispatch", h.deps.Reminders.HandleDispatch)
	v1.Get("/stats", h.deps.Reminders.HandleStats)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

// newLimiter limits per client IP. scale multiplies the configured maximum.
func newLimiter(deps Dependencies, group string, scale int) fiber.Handler {
	max := deps.LimiterMax
	if max <= 0 {
		max = 120
	}
	return limiter.New(limiter.Config{
		Max:        max * scale,
		Expiration: time.Minute,
		Storage:    deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return group + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	})
}
