package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"ticketera/internal/handlers"
	authMiddleware "ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/pricing"
	"ticketera/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Operating-cost rounding is fixed at boot
	if mode := os.Getenv("COST_ROUNDING"); mode != "" {
		switch pricing.CostRoundingMode(mode) {
		case pricing.CostRoundingPerComponent, pricing.CostRoundingOnSum:
			pricing.DefaultCostRounding = pricing.CostRoundingMode(mode)
		default:
			log.Fatalf("Unknown COST_ROUNDING value: %s", mode)
		}
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Auth features will not work until valid credentials are provided")
	}

	// Initialize Database
	var db *gorm.DB
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err = services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional: without it listings are uncached and transfer
	// completion loses the cross-process lock
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, continuing without cache: %v", err)
			cache = nil
		}
	}

	// Payment provider
	mpService, err := services.NewMercadoPagoService()
	if err != nil {
		log.Fatalf("Failed to configure Mercado Pago: %v", err)
	}

	// Services
	settlementService := services.NewSettlementService(db, cache)
	paymentService := services.NewPaymentService(db, mpService, settlementService)
	refundService := services.NewRefundService(db, mpService, settlementService)

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize handlers
	userHandler := handlers.NewUserHandler(db, authClient)
	eventHandler := handlers.NewEventHandler(db, cache)
	checkoutHandler := handlers.NewCheckoutHandler(db, paymentService)
	refundHandler := handlers.NewRefundHandler(db, refundService)
	transferHandler := handlers.NewTransferHandler(db, settlementService)
	dashboardHandler := handlers.NewDashboardHandler(db, cache)

	// Public routes
	e.POST("/auth/register", userHandler.Register)
	e.GET("/events", eventHandler.ListEvents)
	e.GET("/events/:uuid", eventHandler.GetEvent)
	e.POST("/webhooks/mercadopago", checkoutHandler.MercadoPagoWebhook)

	// Authenticated routes
	authed := e.Group("", authMiddleware.RequireAuth(authClient, db))
	authed.GET("/me", userHandler.Me)
	authed.PATCH("/me", userHandler.UpdateMe)
	authed.POST("/checkout", checkoutHandler.StartCheckout)
	authed.POST("/purchases/:id/checkout", checkoutHandler.ResumeCheckout)
	authed.GET("/purchases", checkoutHandler.ListPurchases)
	authed.GET("/purchases/:id", checkoutHandler.GetPurchase)
	authed.POST("/purchases/:id/refund-requests", refundHandler.RequestRefund)
	authed.GET("/purchases/:id/refund-preview", refundHandler.PreviewRefund)

	// Producer routes
	producer := authed.Group("", authMiddleware.RequireUserType(models.UserTypeProducer))
	producer.POST("/events", eventHandler.CreateEvent)
	producer.POST("/events/:uuid/ticket-types", eventHandler.CreateTicketType)
	producer.POST("/events/:uuid/publish", eventHandler.PublishEvent)
	producer.GET("/transfers", transferHandler.ListTransfers)
	producer.GET("/dashboard", dashboardHandler.Summary)

	// Admin routes
	admin := authed.Group("/admin", authMiddleware.RequireUserType(models.UserTypeAdmin))
	admin.PATCH("/users/:id/type", userHandler.SetUserType)
	admin.GET("/refund-requests", refundHandler.ListRefundRequests)
	admin.POST("/refund-requests/:id/process", refundHandler.ProcessRefund)
	admin.POST("/transfers/:id/complete", transferHandler.CompleteTransfer)
	admin.POST("/transfers/:id/reopen", transferHandler.ReopenTransfer)
	admin.POST("/transfers/:id/fail", transferHandler.FailTransfer)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
