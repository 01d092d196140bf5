package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
)

// Router registers a set of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

type HealthRouter struct {
	check func() error
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		if h.check != nil {
			if err := h.check(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

// NewHealthRouter reports unhealthy while check fails. check may be nil.
func NewHealthRouter(check func() error) *HealthRouter {
	return &HealthRouter{check: check}
}

func InstallRouter(app *fiber.App, mc *controllers.MarketController, limiter fiber.Handler, health func() error) {
	setup(app, NewHealthRouter(health), NewApiRouter(mc, limiter))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
