package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ragserver/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		errorHandlingMiddleware(handler.logger),
		requestIDMiddleware(),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	router.GET("/health", handler.Health)

	router.GET("/v1/models", handler.ListModels)
	router.GET("/api/models", handler.ListModels)
	router.POST("/v1/chat/completions", handler.ChatCompletions)
	router.POST("/api/chat/completions", handler.ChatCompletions)

	api := router.Group("/api/v1")
	{
		api.POST("/query", handler.Query)
		api.POST("/ingest", handler.Ingest)
		api.POST("/ingest-reference", handler.IngestReference)
		api.GET("/jobs/:id", handler.GetJob)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
