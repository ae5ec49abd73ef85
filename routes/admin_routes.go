package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/datingdna/datingdna_backend/controllers"
	"github.com/datingdna/datingdna_backend/middleware"
	"github.com/datingdna/datingdna_backend/websocket"
)

// AdminControllers bundles the controllers mounted under /api/admin.
type AdminControllers struct {
	Orders      *controllers.OrderController
	Commissions *controllers.CommissionController
	Payouts     *controllers.PayoutController
	Partners    *controllers.PartnerController
	Sweep       *controllers.SweepController
}

// RegisterAdminRoutes sets up all back-office routes. Everything here
// requires an admin JWT.
func RegisterAdminRoutes(e *echo.Echo, ctrl AdminControllers, hub *websocket.Hub) {
	admin := e.Group("/api/admin")
	admin.Use(middleware.JWTMiddleware())

	// Order ledger
	admin.GET("/orders", ctrl.Orders.ListOrders)
	admin.GET("/orders/:id", ctrl.Orders.GetOrder)
	admin.POST("/orders/:id/refund", ctrl.Orders.RefundOrder)

	// Commission ledger
	admin.GET("/commissions", ctrl.Commissions.ListCommissions)
	admin.GET("/commissions/summary", ctrl.Commissions.GetSummary)
	admin.GET("/commissions/:id", ctrl.Commissions.GetCommission)
	admin.POST("/commissions/sweep", ctrl.Sweep.TriggerSweep)

	// Payouts
	admin.POST("/payouts", ctrl.Payouts.CreatePayout)
	admin.GET("/payouts", ctrl.Payouts.ListPayouts)
	admin.GET("/payouts/:id", ctrl.Payouts.GetPayout)
	admin.POST("/payouts/:id/export", ctrl.Payouts.ExportPayout)
	admin.POST("/payouts/:id/paid", ctrl.Payouts.MarkPaid)

	// Partners
	admin.POST("/partners", ctrl.Partners.CreatePartner)
	admin.GET("/partners", ctrl.Partners.ListPartners)
	admin.GET("/partners/:id", ctrl.Partners.GetPartner)
	admin.PUT("/partners/:id", ctrl.Partners.UpdatePartner)

	// Live activity feed
	admin.GET("/ws/activity", func(c echo.Context) error {
		return websocket.HandleActivityFeed(c, hub)
	})
}
