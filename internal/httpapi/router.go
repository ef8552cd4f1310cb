// Package httpapi is the thin HTTP adapter over the core engines, per
// spec.md §6. Routes live under /api/v1/films, matching the original
// service's external contract.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdn-edge/internal/ratelimit"
)

// NewRouter wires the films routes onto a fresh gin.Engine.
func NewRouter(h *Handlers, limiter *ratelimit.Limiter, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginZapLogger(log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"*"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsCfg))

	router.Use(rateLimitMiddleware(limiter))

	router.GET("/health", h.Health)
	router.GET("/debug/activity", h.DebugActivity)

	films := router.Group("/api/v1/films")
	{
		films.GET("/:object_name", h.GetObject)
		films.GET("/:object_name/status", h.GetStatus)
		films.POST("/object", h.PostObject)
		films.DELETE("/object", h.DeleteObject)
	}

	return router
}

func ginZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

func rateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(429, gin.H{"detail": "Too many requests"})
			return
		}
		c.Next()
	}
}
