package catalogs

import (
	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/api/middleware"
	"github.com/liliang-cn/tablechat/internal/api/response"
	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/liliang-cn/tablechat/internal/service"
)

// Handler handles catalog API requests
type Handler struct {
	catalogService *service.CatalogService
}

// NewHandler creates a new catalog handler
func NewHandler(catalogService *service.CatalogService) *Handler {
	return &Handler{catalogService: catalogService}
}

// RegisterRoutes registers catalog routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.ListCatalogs)
	r.DELETE("/:db", h.DeleteDatabase)
}

// ListCatalogs lists the uploaded databases of one visibility
func (h *Handler) ListCatalogs(c *gin.Context) {
	vis := domain.ParseVisibility(c.Query("visibility"))

	entries, err := h.catalogService.List(c.Request.Context(), vis)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.OK(c, gin.H{"visibility": vis, "catalogs": entries}, nil)
}

// DeleteDatabase deletes an uploaded database
func (h *Handler) DeleteDatabase(c *gin.Context) {
	msg, err := h.catalogService.Delete(c.Request.Context(), middleware.SessionID(c), c.Param("db"))
	if err != nil {
		response.Error(c, err, []domain.Notice{domain.NewNotice(domain.NoticeError, "Failed to delete database")})
		return
	}
	if msg == "" {
		msg = "Database deleted"
	}
	response.OK(c, gin.H{"message": msg}, []domain.Notice{domain.NewNotice(domain.NoticeSuccess, msg)})
}
