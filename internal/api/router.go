package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/api/admin"
	"github.com/liliang-cn/search4all/internal/api/middleware"
	"github.com/liliang-cn/search4all/internal/api/query"
	"github.com/liliang-cn/search4all/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	UIDir        string
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
}

// SetupRouter sets up the Gin router
func SetupRouter(
	queryService *service.QueryService,
	sessionService *service.SessionService,
	logger *zap.Logger,
	cfg RouterConfig,
) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Web UI
	if err := SetupStaticRoutes(r, cfg.UIDir); err != nil {
		return nil, err
	}

	// Query API (public, keyed by search_uuid)
	queryHandler := query.NewHandler(queryService, logger)
	queryHandler.RegisterRoutes(r)

	// Admin API (requires API key)
	adminHandler := admin.NewHandler(sessionService)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.Auth(cfg.APIKey))
	adminHandler.RegisterRoutes(adminGroup)

	return r, nil
}
