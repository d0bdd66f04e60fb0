package api

import (
	"github.com/gin-gonic/gin"

	"github.com/duelqueue/backend/internal/api/handlers"
	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/middleware"
	"github.com/duelqueue/backend/internal/session"
)

// SetupRoutes configures the external interfaces of spec 6.
func SetupRoutes(router *gin.Engine, facade *session.Facade, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	router.GET("/api/health", handlers.HealthCheck)

	match := router.Group("/match")
	{
		match.POST("", handlers.CreateMatch(facade, cfg))
		match.POST("/stream", handlers.StreamMatch(facade))
		match.POST("/start", handlers.StartMatch(facade))
		match.POST("/finish", handlers.FinishMatch(facade))
		match.GET("/cancel/:match_id", handlers.CancelMatch(facade))
	}
}
