package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"agromarket_backend/config"
	"agromarket_backend/models"
	"agromarket_backend/routes"
	"agromarket_backend/scheduler"
	"agromarket_backend/services/marketdata"
	"agromarket_backend/services/predictor"
	"agromarket_backend/services/recommendations"
	"agromarket_backend/services/stream"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// dbInitialized tracks whether database has been successfully initialized
// This global variable is used for thread-safe access across goroutines to allow
// the /ready health endpoint to dynamically check database status
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  AgroMarket Backend API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up. Database is initialized in background.
	setupHealthEndpoints(router)

	// Create HTTP server with timeouts suited for container platforms
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server IMMEDIATELY so the platform knows we're listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database, services and routes in background
	var jobScheduler *scheduler.Scheduler
	var maintenance *scheduler.Maintenance
	var hub *stream.Hub
	go func() {
		// Initialize database connection
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		// Run database migrations
		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Model artifact store: MongoDB when configured, in-memory otherwise
		modelStore := buildModelStore()

		// Forecasting services
		cache := predictor.NewCache(modelStore)
		trainer := predictor.NewTrainer(db, modelStore)

		// Market data services
		hub = stream.NewHub()
		collector := marketdata.NewCollector(db, cfg.PriceFeedURL, hub)
		source := marketdata.NewDBSource(db)

		// Recommendation lifecycle engine
		recStore := recommendations.NewDBStore(db)
		evalCfg := recommendations.EvaluationConfig{
			MinWindow:    time.Duration(cfg.EvalMinWindowHours) * time.Hour,
			TolerancePct: decimal.NewFromFloat(cfg.EvalTolerancePct),
		}
		engine := recommendations.NewEngine(recStore, source, cache, evalCfg)

		// Background schedulers
		jobScheduler = scheduler.NewScheduler()
		if err := scheduler.RegisterCoreJobs(jobScheduler, cfg, scheduler.CoreJobDeps{
			DB:        db,
			Collector: collector,
			Trainer:   trainer,
			Cache:     cache,
			Engine:    engine,
		}); err != nil {
			log.Printf("ERROR: Failed to register scheduler jobs: %v", err)
		} else {
			jobScheduler.Start()
		}

		maintenance = scheduler.NewMaintenance(db)
		maintenance.Start()

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// Setup all API routes
		routes.SetupRoutes(router, db, routes.Deps{
			Scheduler: jobScheduler,
			Cache:     cache,
			Engine:    engine,
			Store:     recStore,
			Source:    source,
			Hub:       hub,
		})

		log.Println("Application fully initialized with database")
	}()

	// Graceful shutdown
	gracefulShutdown(server, &jobScheduler, &maintenance, &hub)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	// Migrate commodity and price models
	if err := models.MigrateMarketModels(db); err != nil {
		return err
	}

	// Migrate recommendation models
	if err := models.MigrateRecommendationModels(db); err != nil {
		return err
	}

	// Migrate user and alert models
	if err := models.MigrateUserModels(db); err != nil {
		return err
	}

	return nil
}

// buildModelStore picks the model artifact store. MongoDB holds trained model
// artifacts across restarts; without it, models live in process memory and
// the first cache access after a restart trains from scratch.
func buildModelStore() predictor.ModelStore {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		log.Println("MONGODB_URI not set, using in-memory model store")
		return predictor.NewMemoryModelStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := predictor.NewMongoModelStore(ctx, uri)
	if err != nil {
		log.Printf("MongoDB model store unavailable (%v), using in-memory store", err)
		return predictor.NewMemoryModelStore()
	}
	log.Println("Model artifacts stored in MongoDB")
	return store
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "AgroMarket Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		// Check database connection
		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe - can be used for initial health check
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests in production
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler **scheduler.Scheduler, maintenance **scheduler.Maintenance, hub **stream.Hub) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop schedulers first; Stop waits for in-flight jobs to finish
	if *jobScheduler != nil {
		(*jobScheduler).Stop()
	}
	if *maintenance != nil {
		(*maintenance).Stop()
	}
	if *hub != nil {
		(*hub).Shutdown()
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close database connection
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
