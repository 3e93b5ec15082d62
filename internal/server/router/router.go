package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Units     *handlers.UnitHandler
	Dashboard *handlers.DashboardHandler
	Sites     *handlers.SiteHandler
	Metrics   http.Handler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api/v1")
	{
		units := api.Group("/units")
		units.POST("", h.Units.Register)
		units.GET("/:id", h.Units.Get)
		units.GET("/:id/tasks", h.Units.Tasks)
		units.POST("/:id/transitions", h.Units.Transition)
		units.POST("/:id/harvests", h.Units.RecordHarvest)

		if h.Sites != nil {
			api.PUT("/sites/:id", h.Sites.Put)
		}
		api.GET("/sites/:id/dashboard", h.Dashboard.Site)
		api.GET("/dashboard", h.Dashboard.Global)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
