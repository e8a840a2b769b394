package handler

import (
	"context"
	"errors"
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReceiptHandler struct {
	receiptService    service.ReceiptService
	settlementService service.SettlementService
	idempotencyRepo   repository.IdempotencyRepository
}

func NewReceiptHandler(
	receiptService service.ReceiptService,
	settlementService service.SettlementService,
	idempotencyRepo repository.IdempotencyRepository,
) *ReceiptHandler {
	return &ReceiptHandler{
		receiptService:    receiptService,
		settlementService: settlementService,
		idempotencyRepo:   idempotencyRepo,
	}
}

func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup) {
	receipts := router.Group("/api/receipts")
	{
		receipts.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.List)
		receipts.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleStaff), h.Get)
		receipts.GET("/:id/changes", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.FieldChanges)
		receipts.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.Create)
		receipts.POST("/:id/orders/:orderId", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.AddOrder)
		receipts.DELETE("/:id/orders/:orderId", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.RemoveOrder)
		receipts.PUT("/:id/orders/:orderId/field", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.EditField)
		receipts.DELETE("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.Archive)

		// Transitions carry ledger side effects, so they accept an
		// Idempotency-Key header and replay the stored response on retry.
		idem := middleware.Idempotent(h.idempotencyRepo)
		receipts.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin, model.RoleManager), idem, h.Approve)
		receipts.PUT("/:id/send", middleware.RequireRole(model.RoleAdmin, model.RoleManager), idem, h.SendForSettlement)
		receipts.PUT("/:id/settle", middleware.RequireRole(model.RoleAdmin, model.RoleManager), idem, h.Settle)
		receipts.PUT("/:id/reverse", middleware.RequireRole(model.RoleAdmin), idem, h.Reverse)
	}
}

// Create assembles a new draft receipt from orders of one supplier
// @Summary      Create draft receipt
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateReceiptRequest  true  "Receipt Payload"
// @Success      201      {object}  response.Response{data=service.ReceiptResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/receipts [post]
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req service.CreateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	receipt, err := h.receiptService.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, receipt))
}

func (h *ReceiptHandler) Get(c *gin.Context) {
	receipt, err := h.receiptService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

func (h *ReceiptHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := service.ReceiptFilter{
		SupplierID: c.Query("supplier_id"),
		Status:     c.Query("status"),
		Page:       p.Page,
		Limit:      p.Limit,
	}

	receipts, total, err := h.receiptService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Paginated{
		Items: receipts, Total: total, Page: p.Page, Limit: p.Limit,
	}))
}

func (h *ReceiptHandler) AddOrder(c *gin.Context) {
	receipt, err := h.receiptService.AddOrder(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

// RemoveOrder detaches a member order; removing the last member archives the receipt
func (h *ReceiptHandler) RemoveOrder(c *gin.Context) {
	receipt, archived, err := h.receiptService.RemoveOrder(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if archived {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"archived": true}))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

// EditField updates one editable field on a member order
// @Summary      Edit member order field
// @Description  Updates one of the five editable monetary fields on a member order, records the change against the join-time snapshot and recomputes totals.
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Receipt ID"
// @Param        orderId  path      string                    true  "Order ID"
// @Param        payload  body      service.EditFieldRequest  true  "Field Edit"
// @Success      200      {object}  response.Response{data=service.ReceiptResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/receipts/{id}/orders/{orderId}/field [put]
func (h *ReceiptHandler) EditField(c *gin.Context) {
	var req service.EditFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	receipt, err := h.receiptService.EditField(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("orderId"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

func (h *ReceiptHandler) Archive(c *gin.Context) {
	if err := h.receiptService.Archive(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"archived": true}))
}

func (h *ReceiptHandler) FieldChanges(c *gin.Context) {
	changes, err := h.receiptService.FieldChanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, changes))
}

// Approve moves a draft receipt to approved
func (h *ReceiptHandler) Approve(c *gin.Context) {
	h.runTransition(c, h.settlementService.Approve)
}

// SendForSettlement moves an approved receipt to sent_for_settlement
func (h *ReceiptHandler) SendForSettlement(c *gin.Context) {
	h.runTransition(c, h.settlementService.SendForSettlement)
}

// Settle moves a sent receipt to settled
func (h *ReceiptHandler) Settle(c *gin.Context) {
	h.runTransition(c, h.settlementService.Settle)
}

// Reverse walks the receipt one settlement step backwards
func (h *ReceiptHandler) Reverse(c *gin.Context) {
	h.runTransition(c, h.settlementService.Reverse)
}

func (h *ReceiptHandler) runTransition(c *gin.Context, fn func(ctx context.Context, userID, receiptID string) (service.ReceiptResponse, error)) {
	receipt, err := fn(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, receipt))
}

// writeError maps domain errors onto HTTP status codes
func (h *ReceiptHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrReceiptNotDraft),
		errors.Is(err, service.ErrReceiptNotEmpty),
		errors.Is(err, service.ErrNoMemberOrders),
		errors.Is(err, service.ErrOrderClaimed),
		errors.Is(err, repository.ErrVersionConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrOrderNotMember),
		errors.Is(err, service.ErrSupplierMismatch),
		errors.Is(err, service.ErrUnknownField):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	default:
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	}
}
