package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelnotes-backend/internal/http/handlers"
	"github.com/yungbote/reelnotes-backend/internal/platform/envutil"
)

type RouterConfig struct {
	JobHandler     *handlers.JobHandler
	VersionHandler *handlers.VersionHandler
	ChatHandler    *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			envutil.String("CORS_ORIGIN", "http://localhost:3000"),
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/jobs", cfg.JobHandler.Upload)
		api.GET("/jobs/:id", cfg.JobHandler.Get)
		api.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)

		api.GET("/jobs/:id/versions", cfg.VersionHandler.List)
		api.GET("/jobs/:id/versions/:number", cfg.VersionHandler.Download)
		api.GET("/jobs/:id/images/*key", cfg.VersionHandler.Image)

		api.POST("/jobs/:id/chat", cfg.ChatHandler.Post)
		api.GET("/jobs/:id/chat", cfg.ChatHandler.History)
	}

	return router
}
