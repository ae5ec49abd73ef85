package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/datingdna/datingdna_backend/controllers"
)

// RegisterWebhookRoutes sets up the payment processor webhook endpoint.
// The route is unauthenticated; the controller verifies the event signature.
func RegisterWebhookRoutes(e *echo.Echo, webhookController *controllers.WebhookController) {
	webhooks := e.Group("/api/webhooks")
	webhooks.POST("/stripe", webhookController.HandleProcessorEvent)
}
