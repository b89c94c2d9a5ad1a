package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/modkit/modmail-relay/internal/api/http/handlers"
	"github.com/modkit/modmail-relay/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Events         *handlers.EventsHandler
	AuthMiddleware *auth.GatewayAuth
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	events := app.Group("/events", cfg.AuthMiddleware.Handle)
	events.Post("/direct-message", cfg.Events.DirectMessage)
	events.Post("/guild-command", cfg.Events.GuildCommand)
}
