package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/datingdna/datingdna_backend/config"
	"github.com/datingdna/datingdna_backend/controllers"
	"github.com/datingdna/datingdna_backend/routes"
	"github.com/datingdna/datingdna_backend/scheduler"
	"github.com/datingdna/datingdna_backend/services"
	appMiddleware "github.com/datingdna/datingdna_backend/middleware"
	"github.com/datingdna/datingdna_backend/repositories"
	"github.com/datingdna/datingdna_backend/utils"
	"github.com/datingdna/datingdna_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (webhook dedup cache)
	config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()
	db := client.Database(config.DatabaseName())

	seedAdmin(client)

	// Create WebSocket hub for the admin activity feed
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Initialize repositories
	orderRepo := repositories.NewMongoOrderRepository(db)
	commissionRepo := repositories.NewMongoCommissionRepository(db)
	payoutRepo := repositories.NewMongoPayoutRepository(db)
	partnerRepo := repositories.NewMongoPartnerRepository(db)

	// Initialize services
	stripeService := services.NewStripeService()
	var mailer services.PayoutMailer
	if smtp := utils.NewSMTPMailer(); smtp != nil {
		mailer = smtp
	}
	ledgerService := services.NewLedgerService(orderRepo, commissionRepo, partnerRepo, stripeService, wsHub)
	sweepService := services.NewSweepService(orderRepo, commissionRepo, wsHub)
	payoutService := services.NewPayoutService(commissionRepo, payoutRepo, partnerRepo, mailer, wsHub)

	// Create a new Echo instance
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	// Initialize rate limiter
	rateLimiter := appMiddleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(appMiddleware.SecurityHeadersWithConfig(appMiddleware.SecurityConfig{
		AllowedDomains: []string{"*"},
		AllowInlineJS:  false,
		AllowEval:      false,
	}))

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "DatingDNA Affiliate Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize controllers
	webhookController := controllers.NewWebhookController(ledgerService, stripeService, config.GetRedisClient())
	orderController := controllers.NewOrderController(orderRepo, ledgerService)
	commissionController := controllers.NewCommissionController(commissionRepo)
	payoutController := controllers.NewPayoutController(payoutService, payoutRepo)
	partnerController := controllers.NewPartnerController(partnerRepo)
	sweepController := controllers.NewSweepController(sweepService)

	// Register routes
	routes.RegisterAuthRoutes(e, client)
	routes.RegisterWebhookRoutes(e, webhookController)
	routes.RegisterAdminRoutes(e, routes.AdminControllers{
		Orders:      orderController,
		Commissions: commissionController,
		Payouts:     payoutController,
		Partners:    partnerController,
		Sweep:       sweepController,
	}, wsHub)

	// Start the lock sweep scheduler
	jobs := scheduler.NewManager(sweepService)
	jobs.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		jobs.Stop()
		config.CloseRedis()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}

// seedAdmin creates the initial back-office admin from ADMIN_EMAIL and
// ADMIN_PASSWORD when no admin with that email exists yet.
func seedAdmin(client *mongo.Client) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := config.GetCollection(client, "admins")
	count, err := collection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		log.Printf("Failed to check for existing admin: %v", err)
		return
	}
	if count > 0 {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}

	_, err = collection.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$setOnInsert": bson.M{
			"email":     email,
			"password":  string(hash),
			"fullName":  "Administrator",
			"createdAt": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Printf("Failed to seed admin account: %v", err)
		return
	}
	log.Printf("Seeded admin account %s", email)
}
