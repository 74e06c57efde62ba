package routes

import (
	"agromarket_backend/config"
	"agromarket_backend/controllers"
	"agromarket_backend/middleware"
	"agromarket_backend/scheduler"
	"agromarket_backend/services/marketdata"
	"agromarket_backend/services/predictor"
	"agromarket_backend/services/recommendations"
	"agromarket_backend/services/stream"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps bundles the initialized services the routes are wired against
type Deps struct {
	Scheduler *scheduler.Scheduler
	Cache     *predictor.Cache
	Engine    *recommendations.Engine
	Store     recommendations.Store
	Source    marketdata.Source
	Hub       *stream.Hub
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, deps Deps) {
	authController := controllers.NewAuthController(db)
	marketController := controllers.NewMarketController(db, deps.Source)
	schedulerController := controllers.NewSchedulerController(deps.Scheduler, deps.Cache)
	recommendationController := controllers.NewRecommendationController(deps.Engine, deps.Store)

	authRequired := middleware.JWTAuthMiddleware(config.AppConfig.JWTSecret)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/login", authController.Login)
		}

		// Commodity and market data routes
		api.GET("/commodities", marketController.GetCommodities)
		api.GET("/commodities/:name/prices", marketController.GetPrices)
		api.GET("/commodities/:name/quote", marketController.GetQuote)
		api.GET("/markets", marketController.GetMarkets)

		// Scheduler routes
		schedulerRoutes := api.Group("/scheduler")
		{
			schedulerRoutes.GET("/status", schedulerController.GetStatus)
			schedulerRoutes.POST("/trigger/scrape", schedulerController.TriggerScrape)
			schedulerRoutes.POST("/trigger/retrain", schedulerController.TriggerRetrain)
			schedulerRoutes.POST("/trigger/evaluate", schedulerController.TriggerEvaluate)
			schedulerRoutes.POST("/model/reset", schedulerController.ResetModel)
		}

		// Recommendation routes (authenticated)
		recs := api.Group("/recommendations", authRequired)
		{
			recs.GET("", recommendationController.List)
			recs.GET("/:id", recommendationController.Get)
			recs.POST("/generate", recommendationController.Generate)
			recs.POST("/:id/acknowledge", recommendationController.Acknowledge)
		}
	}

	// Live price stream
	if deps.Hub != nil {
		router.GET("/ws/prices", func(c *gin.Context) {
			deps.Hub.HandleConnection(c.Writer, c.Request)
		})
	}
}
