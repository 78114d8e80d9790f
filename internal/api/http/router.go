package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/status-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Status *handlers.StatusHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	statusGroup := app.Group("/status")
	statusGroup.Post("/batch", cfg.Status.BatchStatus)
	statusGroup.Post("/updates", cfg.Status.StatusUpdates)
	statusGroup.Get("/:id", cfg.Status.GetStatus)
	statusGroup.Post("/:id/update", cfg.Status.UpdateStatus)
	statusGroup.Get("/:id/validate", cfg.Status.ValidateTransition)
	statusGroup.Get("/:id/history", cfg.Status.GetHistory)
}
