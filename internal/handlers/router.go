package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/logging"
	"neurosphere-backend/internal/metrics"
	"neurosphere-backend/internal/middleware"
	"neurosphere-backend/internal/services"
)

type RouterConfig struct {
	Service        *services.ScanService
	Store          Pinger
	Validator      auth.Validator
	AuthRequired   bool
	AllowedOrigins []string
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// NewRouter registers every HTTP route. Health and metrics are served without
// authentication.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(logging.GinLogger(cfg.Logger))
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Health check (no auth)
	router.GET("/health", NewHealthHandler(cfg.Store).Health)

	uploadHandler := NewUploadHandler(cfg.Service, cfg.MaxUploadBytes, cfg.Logger)
	scansHandler := NewScansHandler(cfg.Service, cfg.Logger)
	statusHandler := NewStatusHandler(cfg.Service, cfg.Logger)
	imagesHandler := NewImagesHandler(cfg.Service, cfg.Logger)
	visualizationsHandler := NewVisualizationsHandler(cfg.Service, cfg.Logger)
	usersHandler := NewUsersHandler(cfg.Service, cfg.Logger)
	mriHandler := NewMRIHandler(cfg.Service, cfg.MaxUploadBytes, cfg.Logger)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg.Validator, cfg.AuthRequired))

	// Session introspection
	protected.GET("/auth/validate", ValidateSession)

	// Scans
	protected.POST("/scans/upload", uploadHandler.Upload)
	protected.GET("/scans", scansHandler.ListScans)
	protected.GET("/scans/:id", scansHandler.GetScan)
	protected.GET("/scans/:id/status", statusHandler.GetStatus)
	protected.GET("/scans/:id/thumbnail", imagesHandler.GetThumbnail)
	protected.GET("/scans/:id/heatmap", imagesHandler.GetHeatmap)

	// Visualizations
	protected.POST("/scans/:id/visualize", visualizationsHandler.Visualize)
	protected.GET("/visualizations/:id", visualizationsHandler.GetVisualization)

	// Users
	protected.GET("/users/stats", usersHandler.GetStats)

	// One-shot classification
	protected.POST("/mri/heatmap", mriHandler.Heatmap)

	return router
}
