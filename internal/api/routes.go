package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		imports.POST("", handler.RunImport)
		imports.POST("/queue", handler.QueueImport)
		imports.GET("/history", handler.History)
		imports.GET("/:session_id", handler.GetSession)
		imports.DELETE("/:session_id", handler.DiscardSession)
		imports.POST("/:session_id/conflicts/:conflict_id/apply", handler.ForceApply)
	}
}
