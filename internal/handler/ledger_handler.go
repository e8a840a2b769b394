package handler

import (
	"errors"
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

type LedgerHandler struct {
	ledgerService service.LedgerService
}

func NewLedgerHandler(ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	ledger := router.Group("/api/ledger")
	{
		ledger.GET("/transactions", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ListTransactions)
		ledger.GET("/card-transactions", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ListCardTransactions)
		ledger.GET("/balance/:supplierId", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.Balance)
		ledger.POST("/transactions", middleware.RequireRole(model.RoleAdmin), h.PostEntry)
		ledger.PUT("/transactions/:id/reverse", middleware.RequireRole(model.RoleAdmin), h.ReverseEntry)
	}
}

// PostEntry records a manual ledger entry against a supplier balance
// @Summary      Post manual ledger entry
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.PostEntryRequest  true  "Ledger Entry"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/ledger/transactions [post]
func (h *LedgerHandler) PostEntry(c *gin.Context) {
	var req service.PostEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	tx, err := h.ledgerService.PostEntry(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		if errors.Is(err, service.ErrNonPositiveAmount) {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, tx))
}

// ReverseEntry flags an entry reversed and posts the compensating entry
func (h *LedgerHandler) ReverseEntry(c *gin.Context) {
	tx, err := h.ledgerService.ReverseEntry(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tx))
}

func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	filter, err := transactionFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	txs, total, err := h.ledgerService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Paginated{
		Items: txs, Total: total, Page: filter.Page, Limit: filter.Limit,
	}))
}

func (h *LedgerHandler) ListCardTransactions(c *gin.Context) {
	filter, err := transactionFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	txs, total, err := h.ledgerService.ListCardTransactions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Paginated{
		Items: txs, Total: total, Page: filter.Page, Limit: filter.Limit,
	}))
}

// Balance returns the computed per-category balances for one supplier and currency
func (h *LedgerHandler) Balance(c *gin.Context) {
	currency := c.DefaultQuery("currency", model.CurrencyPLN)
	balance, err := h.ledgerService.Balance(c.Request.Context(), c.Param("supplierId"), currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, balance))
}

func transactionFilterFromQuery(c *gin.Context) (repository.TransactionFilter, error) {
	p := pagination.Parse(c)
	filter := repository.TransactionFilter{Page: p.Page, Limit: p.Limit}

	if raw := c.Query("supplier_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.SupplierID = &id
	}
	if raw := c.Query("receipt_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.ReceiptID = &id
	}
	return filter, nil
}
