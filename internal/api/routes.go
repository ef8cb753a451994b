package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playcarrom/backend/internal/api/handlers"
	"github.com/playcarrom/backend/internal/config"
	"github.com/playcarrom/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// CRITICAL: No-cache middleware MUST be first in development
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			// Aggressive no-cache for development
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] Aggressive no-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check (also available at /api/v1/health)
		v1.GET("/health", handlers.HealthCheck)

		// Guest identity
		auth := v1.Group("/auth")
		{
			auth.POST("/guest", handlers.GuestRegister(db, rdb, cfg))
		}
		v1.GET("/me", handlers.AuthMiddleware(cfg), handlers.GetMe(db))

		// Game endpoints
		game := v1.Group("/game")
		{
			game.POST("/queue", handlers.AuthMiddleware(cfg), handlers.JoinQueue(db, rdb, cfg))
			game.GET("/queue/status", handlers.CheckQueueStatus(db, rdb, cfg))
			game.GET("/status", handlers.GetQueueStatus(rdb))
			game.POST("/test", handlers.CreateTestGame(db, rdb, cfg)) // Dev only
			game.POST("/resume", handlers.AuthMiddleware(cfg), handlers.ResumeGame(db, cfg))
			game.GET("/:token", handlers.GetGameState(db, rdb, cfg))
			game.GET("/:token/ws", handlers.HandleGameWebSocket())
			game.POST("/:token/save", handlers.AuthMiddleware(cfg), handlers.SaveGame(db, cfg))
		}

		// Admin endpoints
		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/login", handlers.AdminLogin(db, cfg))

			protected := adminGroup.Group("")
			protected.Use(handlers.AdminAuthMiddleware(cfg), handlers.AdminAuditTrail(db))
			{
				protected.GET("/matches", handlers.GetAdminMatches(db))
				protected.GET("/matches/:id", handlers.GetAdminMatchDetail(db))
				protected.GET("/players", handlers.GetAdminPlayers(db))
				protected.GET("/audit", handlers.GetAdminAudit(db))
				protected.GET("/config", handlers.GetAdminRuntimeConfig(db))
				protected.PUT("/config", handlers.UpdateAdminRuntimeConfig(db, cfg))
			}
		}
	}
}
