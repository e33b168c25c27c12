package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/api/catalogs"
	"github.com/liliang-cn/tablechat/internal/api/middleware"
	"github.com/liliang-cn/tablechat/internal/api/workspace"
	"github.com/liliang-cn/tablechat/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	sessions *service.WorkspaceManager,
	catalogService *service.CatalogService,
	logger *zap.Logger,
	cfg RouterConfig,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "workspaces": sessions.Count()})
	})

	api := r.Group("/api")
	api.Use(middleware.Session())

	// Workspace API (per browser session)
	workspaceHandler := workspace.NewHandler(sessions)
	workspaceHandler.RegisterRoutes(api.Group("/workspace"))

	// Catalog API
	catalogHandler := catalogs.NewHandler(catalogService)
	catalogHandler.RegisterRoutes(api.Group("/catalogs"))

	return r
}
