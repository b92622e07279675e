package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noc-kit/faultdesk/internal/api/http/handlers"
	"github.com/noc-kit/faultdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	Settings       *handlers.SettingsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.OpenTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/updates", cfg.Tickets.ApplyUpdate)
	tickets.Get("/:id/updates", cfg.Tickets.ListUpdates)
	tickets.Delete("/:id", auth.RequireAdmin(), cfg.Tickets.PurgeTicket)

	sessions := api.Group("/notifications/sessions")
	sessions.Post("", cfg.Notifications.Connect)
	sessions.Get("/:id", cfg.Notifications.Recent)
	sessions.Get("/:id/stream", cfg.Notifications.Stream)
	sessions.Post("/:id/read", cfg.Notifications.MarkRead)
	sessions.Post("/:id/read-all", cfg.Notifications.MarkAllRead)
	sessions.Delete("/:id", cfg.Notifications.Disconnect)

	settings := api.Group("/settings")
	settings.Get("/ttr", cfg.Settings.GetTTRSettings)
	settings.Put("/ttr", auth.RequireAdmin(), cfg.Settings.UpdateTTRSettings)
}
