package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Bizinso/BizSocials-sub013/internal/gateway"
	"github.com/Bizinso/BizSocials-sub013/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(
	app *fiber.App,
	gatewayHandler *gateway.Handler,
	endpointsHandler *handlers.EndpointsHandler,
	healthHandler *handlers.HealthHandler,
) {
	// Health check endpoint
	app.Get("/health", healthHandler.Check)

	// Inbound platform webhooks
	webhooks := app.Group("/webhooks")
	{
		webhooks.Get("/meta", gatewayHandler.MetaVerify)
		webhooks.Post("/meta", gatewayHandler.MetaEvents)
		webhooks.Get("/twitter", gatewayHandler.TwitterCRC)
		webhooks.Post("/twitter", gatewayHandler.TwitterEvents)
	}

	// Endpoint management API
	api := app.Group("/api/v1")
	{
		api.Get("/endpoints", endpointsHandler.List)
		api.Post("/endpoints", endpointsHandler.Create)
		api.Get("/endpoints/:id", endpointsHandler.Get)
		api.Patch("/endpoints/:id", endpointsHandler.Update)
		api.Delete("/endpoints/:id", endpointsHandler.Delete)
		api.Get("/endpoints/:id/deliveries", endpointsHandler.ListDeliveries)
		api.Post("/endpoints/:id/test", endpointsHandler.TestDelivery)
	}
}
