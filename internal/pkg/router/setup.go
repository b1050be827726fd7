package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubTrack/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers and settings shared by all routers.
type Dependencies struct {
	Subscriptions *controllers.SubscriptionController
	Reminders     *controllers.ReminderController
	Webhooks      *controllers.WebhookController
	APIToken      string
	// LimiterStorage backs the API rate limiter; nil keeps counts in memory.
	LimiterStorage fiber.Storage
	LimiterMax     int
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
