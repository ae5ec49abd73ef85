package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/datingdna/datingdna_backend/controllers"
)

// RegisterAuthRoutes sets up admin authentication
func RegisterAuthRoutes(e *echo.Echo, db *mongo.Client) {
	authController := controllers.NewAuthController(db)

	auth := e.Group("/api/auth")
	auth.POST("/login", authController.Login)
}
