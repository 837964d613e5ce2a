package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commeet/backend/internal/config"
	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/entitlement"
	"github.com/commeet/backend/internal/gitsync"
	"github.com/commeet/backend/internal/handlers"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present (production uses real env vars)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Month boundaries for usage quotas follow the configured timezone
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("Warning: invalid TIMEZONE %q, falling back to UTC", cfg.Timezone)
		loc = time.UTC
	}

	entitlements := entitlement.NewService(database.DB, entitlement.DefaultPlanLimits(), loc)
	syncer := gitsync.NewSynchronizer(database.DB)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Commeet API v1.0",
		ServerHeader: "Commeet",
		BodyLimit:    1 * 1024 * 1024, // 1MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "commeet-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	oauthHandler := handlers.NewOAuthHandler(cfg)
	repositoryHandler := handlers.NewRepositoryHandler(entitlements, syncer)
	commitHandler := handlers.NewCommitHandler()
	tweetHandler := handlers.NewTweetHandler(cfg, entitlements)
	usageHandler := handlers.NewUsageHandler(entitlements)
	settingsHandler := handlers.NewSettingsHandler()
	billingHandler := handlers.NewBillingHandler(cfg)
	dashboardHandler := handlers.NewDashboardHandler()

	// API routes
	api := app.Group("/api")

	// Apply rate limiting to API routes (100 requests per minute by default)
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public routes
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// OAuth callbacks are hit by the provider redirect, not by our frontend
	api.Get("/oauth/github/callback", oauthHandler.GithubCallback)
	api.Get("/oauth/twitter/callback", oauthHandler.TwitterCallback)

	// Stripe calls this directly; the signature header is the auth
	api.Post("/billing/webhook", billingHandler.Webhook)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/password", authHandler.ChangePassword)

	// 2FA routes
	protected.Get("/auth/2fa/status", twoFAHandler.Status)
	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	// OAuth connection routes
	protected.Post("/oauth/github/connect", oauthHandler.ConnectGithub)
	protected.Delete("/oauth/github", oauthHandler.DisconnectGithub)
	protected.Post("/oauth/twitter/connect", oauthHandler.ConnectTwitter)
	protected.Delete("/oauth/twitter", oauthHandler.DisconnectTwitter)

	// Repository routes
	repos := protected.Group("/repositories")
	repos.Get("/", repositoryHandler.List)
	repos.Post("/sync", repositoryHandler.Sync)
	repos.Post("/:id/connect", repositoryHandler.Connect)
	repos.Post("/:id/disconnect", repositoryHandler.Disconnect)
	repos.Post("/:id/sync-commits", repositoryHandler.SyncCommits)

	// Commit routes
	commits := protected.Group("/commits")
	commits.Get("/", commitHandler.List)
	commits.Get("/today", commitHandler.Today)
	commits.Get("/range", commitHandler.Range)

	// Tweet routes
	tweets := protected.Group("/tweets")
	tweets.Get("/", tweetHandler.List)
	tweets.Post("/generate", tweetHandler.Generate)
	tweets.Post("/:id/post", tweetHandler.Post)
	tweets.Delete("/:id", tweetHandler.Delete)

	// Usage routes
	protected.Get("/usage", usageHandler.Current)
	protected.Get("/usage/limits", usageHandler.Limits)

	// Billing routes
	protected.Post("/billing/checkout", billingHandler.CreateCheckout)
	protected.Post("/billing/portal", billingHandler.CreatePortal)

	// Voice settings routes
	protected.Get("/settings/voice", settingsHandler.GetVoice)
	protected.Put("/settings/voice", settingsHandler.UpdateVoice)

	// Dashboard routes
	protected.Get("/dashboard/stats", dashboardHandler.Stats)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting Commeet API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
