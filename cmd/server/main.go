package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docsense/backend/internal/api/handlers"
	"github.com/docsense/backend/internal/config"
	"github.com/docsense/backend/internal/database"
	"github.com/docsense/backend/internal/health"
	"github.com/docsense/backend/internal/middleware"
	"github.com/docsense/backend/internal/migration"
	"github.com/docsense/backend/internal/repository"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/internal/services"
	"github.com/docsense/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// .env is optional in deployed environments
	}

	logger := utils.NewLogger()
	logger.Info("Starting docsense personalization engine...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.ValidateRetrieval(); err != nil {
		logger.WithError(err).Fatal("Retrieval configuration validation failed")
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	migrationRunner := migration.NewRunner(dbManager, logger)
	if err := migrationRunner.RunMigrations("migrations"); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	ledger := repository.NewLedger(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	retrievalClient := retrieval.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.APIKey, logger)
	retrievalService := retrieval.NewService(retrievalClient, cfg.Retrieval.TopKText, cfg.Retrieval.TopKImage, logger)
	searcher := services.NewCachedSearcher(retrievalService, cache, cfg.Retrieval.CacheTTL, logger)

	trendTracker := services.NewTrendTracker(ledger.QueryTrend, logger)
	patternEstimator := services.NewPatternEstimator(ledger.Query, ledger.Interaction, ledger.LearningPattern, logger)
	orchestrator := services.NewRetrievalOrchestrator(
		ledger.Student,
		ledger,
		searcher,
		trendTracker,
		patternEstimator,
		logger,
	)

	askHandler := handlers.NewAskHandler(
		orchestrator,
		ledger,
		trendTracker,
		patternEstimator,
		cache,
		cfg.Personalization.TrendingLimit,
		cfg.Personalization.PatternCacheTTL,
		logger,
	)
	healthChecker := health.NewChecker(dbManager, logger, cfg.Retrieval.BaseURL)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go healthChecker.RunPeriodicChecks(healthCtx, time.Minute)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RatePerMinute)
	router.Use(rateLimiter.RateLimit())

	router.GET("/health", func(c *gin.Context) {
		overall := healthChecker.CheckAll()
		code := http.StatusOK
		if overall.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, overall)
	})

	api := router.Group("/api")
	{
		api.POST("/students", askHandler.HandleRegister)
		api.POST("/ask", askHandler.HandleAsk)
		api.POST("/feedback", askHandler.HandleFeedback)
		api.POST("/click", askHandler.HandleClick)
		api.GET("/trending", askHandler.HandleTrending)
		api.GET("/students/:id/pattern", askHandler.HandlePattern)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
