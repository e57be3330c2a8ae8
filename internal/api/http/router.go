package http

import (
	nethttp "net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const generalWindow = time.Minute

// RouterDependencies bundles everything route registration needs.
type RouterDependencies struct {
	Users       *handlers.UsersHandler
	Tickets     *handlers.TicketsHandler
	Reports     *handlers.ReportsHandler
	Health      *handlers.HealthHandler
	AuthMW      *auth.AuthMiddleware
	Limiter     *RateLimiter
	Idempotency *Idempotency
	RateCfg     config.RateLimitConfig
}

// RegisterRoutes wires all endpoints onto the app.
func RegisterRoutes(app *fiber.App, deps RouterDependencies) {
	app.Get("/health/live", deps.Health.Live)
	app.Get("/health/ready", deps.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	authGroup := api.Group("/auth",
		deps.Limiter.Limit("auth", deps.RateCfg.AuthPerWindow, deps.RateCfg.AuthWindow()))
	authGroup.Post("/register", deps.Users.Register)
	authGroup.Post("/login", deps.Users.Login)
	authGroup.Get("/me", deps.AuthMW.Handle, deps.Users.Me)

	tickets := api.Group("/tickets",
		deps.AuthMW.Handle,
		deps.Limiter.Limit("general", deps.RateCfg.GeneralPerMinute, generalWindow))

	// Admin routes are registered before /:id so "admin" is never captured
	// as a ticket id.
	admin := tickets.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/breached", deps.Reports.Breached)
	admin.Get("/export/tickets", deps.Reports.ExportTickets)
	admin.Get("/export/users", deps.Reports.ExportUsers)
	admin.Get("/export/performance", deps.Reports.ExportPerformance)
	admin.Get("/export/sla", deps.Reports.ExportSLA)

	tickets.Post("/",
		deps.Limiter.Limit("tickets", deps.RateCfg.TicketsPerMinute, generalWindow),
		deps.Idempotency.Handle(),
		deps.Tickets.CreateTicket)
	tickets.Get("/", deps.Tickets.ListTickets)
	tickets.Get("/:id", deps.Tickets.GetTicket)
	tickets.Patch("/:id", deps.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", deps.Idempotency.Handle(), deps.Tickets.AddComment)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(nethttp.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "NOT_FOUND",
				"message": "route not found",
			},
		})
	})
}
