package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/config"
	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/events"
	"github.com/ksred/escrow-api/internal/moneybox"
	"github.com/ksred/escrow-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// main initializes and runs the escrow API server with graceful shutdown
// support. It wires the single-payment and money box services over one
// ledger database and exposes them through the API routes.
func main() {
	cfg, err := config.Parse()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to parse configuration")
	}

	configureLogging(cfg)

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, auth.TestAddress)

	emitter := events.LogEmitter{}

	escrowService := escrow.NewService(db, emitter)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	moneyboxService := moneybox.NewService(db, emitter)
	// The single-payment ledger doubles as the sibling for merged listings.
	moneyboxHandlers := moneybox.NewGinHandlers(moneyboxService, escrowService)

	custodyHandlers := custody.NewGinHandlers(db)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, escrowHandlers, moneyboxHandlers, custodyHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// configureLogging sets up application logging based on the environment.
// In development mode, it enables pretty printing with timestamps; debug
// logging can be enabled via DEBUG.
func configureLogging(cfg *config.Config) {
	if cfg.Env != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: single-payment escrow, protected by JWT authentication
// - Moneybox routes: pooled escrow, protected by JWT authentication
// - Ledger routes: public read-only counters
// - Internal routes: custody operations, protected by internal auth
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	moneyboxHandlers *moneybox.GinHandlers,
	custodyHandlers *custody.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Single-payment order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", escrowHandlers.CreateOrderHandler())
			orders.GET("", escrowHandlers.ListOrdersHandler())
			orders.GET("/:order_id", escrowHandlers.GetOrderHandler())
			orders.GET("/:order_id/unlock-code", escrowHandlers.GetUnlockCodeHandler())
			orders.POST("/:order_id/confirm", escrowHandlers.ConfirmReceivedHandler())
			orders.POST("/:order_id/refund", escrowHandlers.RefundHandler())
		}

		// Money box routes
		boxes := v1.Group("/moneyboxes")
		boxes.Use(middleware.JWTAuth(jwtSecret))
		{
			boxes.POST("", moneyboxHandlers.CreateMoneyBoxHandler())
			boxes.GET("", moneyboxHandlers.ListMoneyBoxesHandler())
			boxes.GET("/:order_id", moneyboxHandlers.GetMoneyBoxHandler())
			boxes.GET("/:order_id/payments", moneyboxHandlers.GetPaymentsHandler())
			boxes.GET("/:order_id/amount-to-fill", moneyboxHandlers.GetAmountToFillHandler())
			boxes.GET("/:order_id/unlock-code", moneyboxHandlers.GetUnlockCodeHandler())
			boxes.POST("/:order_id/payments", moneyboxHandlers.AddPaymentHandler())
			boxes.POST("/:order_id/confirm", moneyboxHandlers.ConfirmReceivedHandler())
			boxes.POST("/:order_id/refund", moneyboxHandlers.RefundHandler())
		}

		// Ledger counters
		ledger := v1.Group("/ledger")
		{
			ledger.GET("/order-count", escrowHandlers.OrderCountHandler())
			ledger.GET("/moneybox-count", moneyboxHandlers.MoneyBoxCountHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/accounts/:address/deposit", custodyHandlers.DepositHandler())
			internal.GET("/accounts/:address", custodyHandlers.GetAccountHandler())
			internal.GET("/custody/balance", custodyHandlers.CustodyBalanceHandler())
		}
	}
}
