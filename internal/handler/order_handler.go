package handler

import (
	"errors"
	"net/http"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	{
		orders.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.List)
		orders.GET("/export", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.Export)
		orders.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.Get)
		orders.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.Create)
		orders.PUT("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.Update)
		orders.DELETE("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.Delete)
	}
}

// Create registers a new purchase order
// @Summary      Create order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateOrderRequest  true  "Order Payload"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

func (h *OrderHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter, err := orderFilterFromQuery(c, p)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Paginated{
		Items: orders, Total: total, Page: p.Page, Limit: p.Limit,
	}))
}

// Update edits a NEW order; orders inside a receipt are rejected
func (h *OrderHandler) Update(c *gin.Context) {
	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	order, err := h.orderService.Update(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotEditable):
			c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
		case errors.Is(err, repository.ErrVersionConflict):
			c.JSON(http.StatusConflict, response.Error(http.StatusConflict, "Order was modified by someone else, reload and retry"))
		default:
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

func (h *OrderHandler) Delete(c *gin.Context) {
	if err := h.orderService.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrOrderNotEditable) {
			c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "order deleted"}))
}

// Export streams the filtered order list as a UTF-8 BOM CSV file
// @Summary      Export orders as CSV
// @Tags         orders
// @Produce      text/csv
// @Security     BearerAuth
// @Param        supplier_id  query  string  false  "Filter by supplier"
// @Param        status       query  string  false  "Filter by status"
// @Success      200  {string}  string  "CSV file"
// @Router       /api/orders/export [get]
func (h *OrderHandler) Export(c *gin.Context) {
	filter, err := orderFilterFromQuery(c, pagination.Params{Page: 1, Limit: pagination.MaxLimit})
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	data, err := h.orderService.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	filename := "orders-" + time.Now().Format("20060102-150405") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func orderFilterFromQuery(c *gin.Context, p pagination.Params) (repository.OrderFilter, error) {
	filter := repository.OrderFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if raw := c.Query("supplier_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.SupplierID = &id
	}
	return filter, nil
}
