package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	audit := router.Group("/api/audit")
	{
		audit.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.List)
		audit.GET("/stats", middleware.RequireRole(model.RoleAdmin), h.Stats)
	}
}

// List returns audit trail entries, filterable by actor and action
func (h *AuditHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Action: c.Query("action"),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid user_id"))
			return
		}
		filter.UserID = &id
	}

	entries, total, err := h.auditService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Paginated{
		Items: entries, Total: total, Page: p.Page, Limit: p.Limit,
	}))
}

// Stats returns total/archived counts and the oldest entry timestamp
func (h *AuditHandler) Stats(c *gin.Context) {
	stats, err := h.auditService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
