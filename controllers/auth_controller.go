package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/datingdna/datingdna_backend/config"
	"github.com/datingdna/datingdna_backend/middleware"
	"github.com/datingdna/datingdna_backend/models"
)

// AuthController handles admin authentication for the back-office endpoints.
type AuthController struct {
	DB *mongo.Client
}

func NewAuthController(db *mongo.Client) *AuthController {
	return &AuthController{DB: db}
}

// Login verifies admin credentials and issues a JWT.
func (ac *AuthController) Login(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request format",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email and password are required",
		})
	}

	collection := config.GetCollection(ac.DB, "admins")

	var admin models.Admin
	err := collection.FindOne(ctx, bson.M{"email": req.Email}).Decode(&admin)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	token, err := middleware.GenerateToken(admin.ID.Hex(), admin.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data: models.LoginResponse{
			Token:    token,
			Email:    admin.Email,
			FullName: admin.FullName,
		},
	})
}
