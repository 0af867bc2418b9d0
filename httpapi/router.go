package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine implementing spec.md §6's HTTP surface,
// with ws mounted at /ws and prometheus metrics at /metrics.
func NewRouter(server *Server, ws http.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestIDMiddleware(), loggingMiddleware(logger), recoveryMiddleware(logger), identityMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		MaxAge:          12 * time.Hour,
	}))

	api := r.Group("/api/compute")
	api.POST("/submit", server.handleSubmit)
	api.POST("/execute", server.handleExecute)
	api.GET("/result/:requestId", server.handleGetResult)
	api.POST("/bac", server.handleBAC)
	api.GET("/analytics/:eventId", server.handleAnalytics)
	api.GET("/leaderboard/:eventId", server.handleLeaderboard)
	api.GET("/stats", server.handleStats)

	r.GET("/ws", func(c *gin.Context) {
		ws.ServeHTTP(c.Writer, c.Request)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
