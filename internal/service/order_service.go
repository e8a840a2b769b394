package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/pkg/export"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	ClientRef     string          `json:"client_ref" binding:"required,max=100"`
	SupplierID    string          `json:"supplier_id" binding:"required,uuid"`
	PartPrice     decimal.Decimal `json:"part_price"`
	DeliveryCost  decimal.Decimal `json:"delivery_cost"`
	ReceiptFee    decimal.Decimal `json:"receipt_fee"`
	CodAmount     decimal.Decimal `json:"cod_amount"`
	TransportCost decimal.Decimal `json:"transport_cost"`
	Weight        decimal.Decimal `json:"weight"`
	Currency      string          `json:"currency" binding:"required,oneof=PLN USD"`
	PaymentType   string          `json:"payment_type" binding:"required"`
}

type UpdateOrderRequest struct {
	ClientRef     *string          `json:"client_ref,omitempty"`
	PartPrice     *decimal.Decimal `json:"part_price,omitempty"`
	DeliveryCost  *decimal.Decimal `json:"delivery_cost,omitempty"`
	ReceiptFee    *decimal.Decimal `json:"receipt_fee,omitempty"`
	CodAmount     *decimal.Decimal `json:"cod_amount,omitempty"`
	TransportCost *decimal.Decimal `json:"transport_cost,omitempty"`
	Weight        *decimal.Decimal `json:"weight,omitempty"`
	PaymentType   *string          `json:"payment_type,omitempty"`
	Version       int              `json:"version" binding:"required,min=1"`
}

// OrderService handles purchase order intake. Once an order has joined a
// receipt its numeric fields are editable only through the receipt screen,
// so Update and Delete are limited to NEW orders.
type OrderService interface {
	Create(ctx context.Context, userID string, req CreateOrderRequest) (*model.Order, error)
	Get(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int64, error)
	Update(ctx context.Context, userID, id string, req UpdateOrderRequest) (*model.Order, error)
	Delete(ctx context.Context, userID, id string) error
	ExportCSV(ctx context.Context, filter repository.OrderFilter) ([]byte, error)
}

type orderService struct {
	orders    repository.OrderRepository
	suppliers repository.SupplierRepository
	audit     repository.AuditRepository
	txm       repository.TransactionManager
}

func NewOrderService(
	orders repository.OrderRepository,
	suppliers repository.SupplierRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
) OrderService {
	return &orderService{orders: orders, suppliers: suppliers, audit: audit, txm: txm}
}

func (s *orderService) Create(ctx context.Context, userID string, req CreateOrderRequest) (*model.Order, error) {
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier id: %w", err)
	}
	if _, err := s.suppliers.FindByID(ctx, supplierID); err != nil {
		return nil, fmt.Errorf("supplier not found: %w", err)
	}

	order := model.Order{
		ClientRef:     req.ClientRef,
		SupplierID:    supplierID,
		PartPrice:     req.PartPrice,
		DeliveryCost:  req.DeliveryCost,
		ReceiptFee:    req.ReceiptFee,
		CodAmount:     req.CodAmount,
		TransportCost: req.TransportCost,
		Weight:        req.Weight,
		Currency:      req.Currency,
		PaymentType:   req.PaymentType,
		Status:        model.OrderStatusNew,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.orders.Create(txCtx, &order); createErr != nil {
			return fmt.Errorf("failed to create order: %w", createErr)
		}
		details, _ := json.Marshal(map[string]string{
			"client_ref": order.ClientRef,
			"currency":   order.Currency,
		})
		entry := model.AuditLog{
			UserID:     parseActor(userID),
			Action:     model.ActionCreateOrder,
			EntityType: "order",
			EntityID:   order.ID.String(),
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *orderService) Get(ctx context.Context, id string) (*model.Order, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("order not found: %w", err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	return s.orders.List(ctx, filter)
}

func (s *orderService) Update(ctx context.Context, userID, id string, req UpdateOrderRequest) (*model.Order, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid order id: %w", err)
	}

	var order *model.Order
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		order, findErr = s.orders.FindByID(txCtx, oid)
		if findErr != nil {
			return fmt.Errorf("order not found: %w", findErr)
		}
		if order.Status != model.OrderStatusNew {
			return ErrOrderNotEditable
		}
		// The client sends the version it last read; a mismatch means
		// someone else got there first.
		order.Version = req.Version

		updates := map[string]interface{}{}
		if req.ClientRef != nil {
			updates["client_ref"] = *req.ClientRef
		}
		if req.PartPrice != nil {
			updates["part_price"] = *req.PartPrice
		}
		if req.DeliveryCost != nil {
			updates["delivery_cost"] = *req.DeliveryCost
		}
		if req.ReceiptFee != nil {
			updates["receipt_fee"] = *req.ReceiptFee
		}
		if req.CodAmount != nil {
			updates["cod_amount"] = *req.CodAmount
		}
		if req.TransportCost != nil {
			updates["transport_cost"] = *req.TransportCost
		}
		if req.Weight != nil {
			updates["weight"] = *req.Weight
		}
		if req.PaymentType != nil {
			updates["payment_type"] = *req.PaymentType
		}

		if updErr := s.orders.UpdateWithVersion(txCtx, order, updates); updErr != nil {
			return updErr
		}

		details, _ := json.Marshal(updates)
		entry := model.AuditLog{
			UserID:     parseActor(userID),
			Action:     model.ActionUpdateOrder,
			EntityType: "order",
			EntityID:   order.ID.String(),
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return nil, err
	}

	return s.orders.FindByID(ctx, oid)
}

func (s *orderService) Delete(ctx context.Context, userID, id string) error {
	oid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid order id: %w", err)
	}

	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		order, findErr := s.orders.FindByID(txCtx, oid)
		if findErr != nil {
			return fmt.Errorf("order not found: %w", findErr)
		}
		if order.Status != model.OrderStatusNew {
			return ErrOrderNotEditable
		}

		if delErr := s.orders.Delete(txCtx, oid); delErr != nil {
			return fmt.Errorf("failed to delete order: %w", delErr)
		}

		details, _ := json.Marshal(map[string]string{"client_ref": order.ClientRef})
		entry := model.AuditLog{
			UserID:     parseActor(userID),
			Action:     model.ActionDeleteOrder,
			EntityType: "order",
			EntityID:   order.ID.String(),
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
}

var orderExportColumns = []export.Column{
	{Key: "client_ref", Title: "Client Ref"},
	{Key: "supplier", Title: "Supplier"},
	{Key: "part_price", Title: "Part Price"},
	{Key: "delivery_cost", Title: "Delivery Cost"},
	{Key: "receipt_fee", Title: "Receipt Fee"},
	{Key: "cod_amount", Title: "COD Amount"},
	{Key: "transport_cost", Title: "Transport Cost"},
	{Key: "weight", Title: "Weight"},
	{Key: "currency", Title: "Currency"},
	{Key: "payment_type", Title: "Payment Type"},
	{Key: "status", Title: "Status"},
	{Key: "receipt_group", Title: "Receipt"},
	{Key: "created_at", Title: "Created At"},
}

// ExportCSV renders the filtered order list as a CSV file. Pagination is
// bypassed so the export always covers the whole filtered set.
func (s *orderService) ExportCSV(ctx context.Context, filter repository.OrderFilter) ([]byte, error) {
	filter.Page = 1
	filter.Limit = 100000

	orders, _, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for export: %w", err)
	}

	rows := make([]map[string]string, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		supplierName := ""
		if o.Supplier != nil {
			supplierName = o.Supplier.Name
		}
		rows = append(rows, map[string]string{
			"client_ref":     o.ClientRef,
			"supplier":       supplierName,
			"part_price":     o.PartPrice.String(),
			"delivery_cost":  o.DeliveryCost.String(),
			"receipt_fee":    o.ReceiptFee.String(),
			"cod_amount":     o.CodAmount.String(),
			"transport_cost": o.TransportCost.String(),
			"weight":         o.Weight.String(),
			"currency":       o.Currency,
			"payment_type":   o.PaymentType,
			"status":         o.Status,
			"receipt_group":  o.ReceiptGroup,
			"created_at":     o.CreatedAt.Format(time.RFC3339),
		})
	}

	return export.CSV(orderExportColumns, rows)
}
