package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateReceiptRequest struct {
	SupplierID string   `json:"supplier_id" binding:"required"`
	OrderIDs   []string `json:"order_ids" binding:"required,min=1"`
	IssueDate  string   `json:"issue_date"` // YYYY-MM-DD, defaults to today
}

type EditFieldRequest struct {
	Field string `json:"field" binding:"required,oneof=part_price delivery_cost receipt_fee cod_amount transport_cost"`
	Value string `json:"value" binding:"required"`
}

type ReceiptFilter struct {
	SupplierID string
	Status     string
	Page       int
	Limit      int
}

type ReceiptResponse struct {
	ID              string  `json:"id"`
	Number          string  `json:"number"`
	IssueDate       string  `json:"issue_date"`
	Status          string  `json:"status"`
	SupplierID      string  `json:"supplier_id"`
	SupplierName    string  `json:"supplier_name,omitempty"`
	PartsTotal      string  `json:"parts_total"`
	DeliveryTotal   string  `json:"delivery_total"`
	ReceiptFeeTotal string  `json:"receipt_fee_total"`
	CodTotal        string  `json:"cod_total"`
	TransportTotal  string  `json:"transport_total"`
	TotalPLN        string  `json:"total_pln"`
	TotalUSD        string  `json:"total_usd"`
	CreatedBy       *string `json:"created_by"`
	ApprovedBy      *string `json:"approved_by"`
	ApprovedAt      *string `json:"approved_at"`
	SettledBy       *string `json:"settled_by"`
	SettledAt       *string `json:"settled_at"`
	MemberCount     int     `json:"member_count"`
	Version         int     `json:"version"`
	CreatedAt       string  `json:"created_at"`
}

type FieldChangeResponse struct {
	OrderID   string `json:"order_id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	ChangedBy string `json:"changed_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

// ReceiptService is the aggregator: it assembles orders into a draft
// receipt, tracks reviewer edits against immutable snapshots and keeps the
// aggregate totals equal to the sum of the current members' editable fields.
type ReceiptService interface {
	Create(ctx context.Context, userID string, req CreateReceiptRequest) (ReceiptResponse, error)
	Get(ctx context.Context, id string) (ReceiptResponse, error)
	List(ctx context.Context, filter ReceiptFilter) ([]ReceiptResponse, int64, error)
	AddOrder(ctx context.Context, userID, receiptID, orderID string) (ReceiptResponse, error)
	RemoveOrder(ctx context.Context, userID, receiptID, orderID string) (ReceiptResponse, bool, error)
	EditField(ctx context.Context, userID, receiptID, orderID string, req EditFieldRequest) (ReceiptResponse, error)
	Archive(ctx context.Context, userID, receiptID string) error
	FieldChanges(ctx context.Context, receiptID string) ([]FieldChangeResponse, error)
}

type receiptService struct {
	receipts repository.ReceiptRepository
	orders   repository.OrderRepository
	audit    repository.AuditRepository
	txm      repository.TransactionManager
}

func NewReceiptService(
	receipts repository.ReceiptRepository,
	orders repository.OrderRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
) ReceiptService {
	return &receiptService{receipts: receipts, orders: orders, audit: audit, txm: txm}
}

// --- Implementation ---

func (s *receiptService) Create(ctx context.Context, userID string, req CreateReceiptRequest) (ReceiptResponse, error) {
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("invalid supplier_id: %w", err)
	}

	orderIDs := make([]uuid.UUID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return ReceiptResponse{}, fmt.Errorf("invalid order id %q: %w", raw, parseErr)
		}
		orderIDs = append(orderIDs, id)
	}

	issueDate := time.Now()
	if req.IssueDate != "" {
		parsed, parseErr := time.Parse("2006-01-02", req.IssueDate)
		if parseErr != nil {
			return ReceiptResponse{}, fmt.Errorf("invalid issue_date: %w", parseErr)
		}
		issueDate = parsed
	}

	actorID := parseActor(userID)

	var receipt model.Receipt
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		orders, findErr := s.orders.FindByIDs(txCtx, orderIDs)
		if findErr != nil {
			return fmt.Errorf("failed to load orders: %w", findErr)
		}
		if len(orders) != len(orderIDs) {
			return fmt.Errorf("some orders do not exist (requested %d, found %d)", len(orderIDs), len(orders))
		}

		for i := range orders {
			if orders[i].SupplierID != supplierID {
				return fmt.Errorf("order %s: %w", orders[i].ID, ErrSupplierMismatch)
			}
			claims, claimErr := s.receipts.CountOtherOpenClaims(txCtx, orders[i].ID, uuid.Nil)
			if claimErr != nil {
				return fmt.Errorf("failed to check order claims: %w", claimErr)
			}
			if claims > 0 {
				return fmt.Errorf("order %s: %w", orders[i].ID, ErrOrderClaimed)
			}
		}

		number, numErr := s.receipts.GenerateNumber(txCtx, issueDate)
		if numErr != nil {
			return fmt.Errorf("failed to generate receipt number: %w", numErr)
		}

		totals := computeTotals(orders)
		receipt = model.Receipt{
			Number:          number,
			IssueDate:       issueDate,
			Status:          model.ReceiptStatusDraft,
			SupplierID:      supplierID,
			PartsTotal:      totals.parts,
			DeliveryTotal:   totals.delivery,
			ReceiptFeeTotal: totals.receiptFee,
			CodTotal:        totals.cod,
			TransportTotal:  totals.transport,
			TotalPLN:        totals.pln,
			TotalUSD:        totals.usd,
			CreatedBy:       actorID,
		}
		if createErr := s.receipts.Create(txCtx, &receipt); createErr != nil {
			return fmt.Errorf("failed to create receipt: %w", createErr)
		}

		for i := range orders {
			if joinErr := s.joinOrder(txCtx, &receipt, &orders[i]); joinErr != nil {
				return joinErr
			}
		}

		return s.logAudit(txCtx, actorID, model.ActionCreateReceipt, "receipt", receipt.ID.String(), map[string]interface{}{
			"number":      receipt.Number,
			"supplier_id": supplierID.String(),
			"orders":      len(orders),
		})
	})
	if err != nil {
		return ReceiptResponse{}, err
	}

	return s.Get(ctx, receipt.ID.String())
}

func (s *receiptService) Get(ctx context.Context, id string) (ReceiptResponse, error) {
	receiptID, err := uuid.Parse(id)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("invalid receipt id: %w", err)
	}
	receipt, err := s.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("receipt not found: %w", err)
	}
	return toReceiptResponse(receipt), nil
}

func (s *receiptService) List(ctx context.Context, filter ReceiptFilter) ([]ReceiptResponse, int64, error) {
	repoFilter := repository.ReceiptFilter{
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	if filter.SupplierID != "" {
		id, err := uuid.Parse(filter.SupplierID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid supplier_id: %w", err)
		}
		repoFilter.SupplierID = &id
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.Limit <= 0 {
		repoFilter.Limit = 20
	}

	receipts, total, err := s.receipts.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch receipts: %w", err)
	}

	result := make([]ReceiptResponse, 0, len(receipts))
	for i := range receipts {
		result = append(result, toReceiptResponse(&receipts[i]))
	}
	return result, total, nil
}

func (s *receiptService) AddOrder(ctx context.Context, userID, receiptID, orderID string) (ReceiptResponse, error) {
	rID, oID, err := parseMemberIDs(receiptID, orderID)
	if err != nil {
		return ReceiptResponse{}, err
	}
	actorID := parseActor(userID)

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, findErr := s.receipts.FindByID(txCtx, rID)
		if findErr != nil {
			return fmt.Errorf("receipt not found: %w", findErr)
		}
		if receipt.Status != model.ReceiptStatusDraft {
			return ErrReceiptNotDraft
		}

		order, orderErr := s.orders.FindByID(txCtx, oID)
		if orderErr != nil {
			return fmt.Errorf("order not found: %w", orderErr)
		}
		if order.SupplierID != receipt.SupplierID {
			return ErrSupplierMismatch
		}

		claims, claimErr := s.receipts.CountOtherOpenClaims(txCtx, oID, rID)
		if claimErr != nil {
			return fmt.Errorf("failed to check order claims: %w", claimErr)
		}
		if claims > 0 || order.ReceiptGroup == receipt.Number {
			return ErrOrderClaimed
		}

		if joinErr := s.joinOrder(txCtx, receipt, order); joinErr != nil {
			return joinErr
		}
		if recErr := s.recomputeTotals(txCtx, receipt); recErr != nil {
			return recErr
		}

		return s.logAudit(txCtx, actorID, model.ActionAddReceiptOrder, "receipt", receipt.ID.String(), map[string]interface{}{
			"order_id": oID.String(),
		})
	})
	if err != nil {
		return ReceiptResponse{}, err
	}

	return s.Get(ctx, receiptID)
}

// RemoveOrder detaches a member order. Removing the last member auto-archives
// the receipt; the second return value reports whether that happened.
func (s *receiptService) RemoveOrder(ctx context.Context, userID, receiptID, orderID string) (ReceiptResponse, bool, error) {
	rID, oID, err := parseMemberIDs(receiptID, orderID)
	if err != nil {
		return ReceiptResponse{}, false, err
	}
	actorID := parseActor(userID)

	archived := false
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, findErr := s.receipts.FindByID(txCtx, rID)
		if findErr != nil {
			return fmt.Errorf("receipt not found: %w", findErr)
		}
		if receipt.Status != model.ReceiptStatusDraft {
			return ErrReceiptNotDraft
		}

		order, orderErr := s.orders.FindByID(txCtx, oID)
		if orderErr != nil {
			return fmt.Errorf("order not found: %w", orderErr)
		}
		if _, snapErr := s.receipts.FindSnapshot(txCtx, rID, oID); snapErr != nil {
			return ErrOrderNotMember
		}

		if delErr := s.receipts.DeleteLink(txCtx, rID, oID); delErr != nil {
			return fmt.Errorf("failed to remove member link: %w", delErr)
		}
		if delErr := s.receipts.DeleteSnapshot(txCtx, rID, oID); delErr != nil {
			return fmt.Errorf("failed to delete snapshot: %w", delErr)
		}

		if relErr := s.releaseOrder(txCtx, order, rID); relErr != nil {
			return relErr
		}

		if auditErr := s.logAudit(txCtx, actorID, model.ActionRemoveReceiptOrder, "receipt", receipt.ID.String(), map[string]interface{}{
			"order_id": oID.String(),
		}); auditErr != nil {
			return auditErr
		}

		remaining, countErr := s.receipts.CountMembers(txCtx, rID)
		if countErr != nil {
			return fmt.Errorf("failed to count members: %w", countErr)
		}
		if remaining == 0 {
			archived = true
			if delErr := s.receipts.Delete(txCtx, rID); delErr != nil {
				return fmt.Errorf("failed to archive empty receipt: %w", delErr)
			}
			return s.logAudit(txCtx, actorID, model.ActionArchiveReceipt, "receipt", receipt.ID.String(), map[string]interface{}{
				"number": receipt.Number,
				"reason": "last member removed",
			})
		}

		return s.recomputeTotals(txCtx, receipt)
	})
	if err != nil {
		return ReceiptResponse{}, false, err
	}
	if archived {
		return ReceiptResponse{}, true, nil
	}

	resp, err := s.Get(ctx, receiptID)
	return resp, false, err
}

// EditField updates one editable monetary field on a member order, records a
// FieldChange when the value differs from the join-time snapshot, and
// recomputes the aggregate totals — all in one transaction.
func (s *receiptService) EditField(ctx context.Context, userID, receiptID, orderID string, req EditFieldRequest) (ReceiptResponse, error) {
	rID, oID, err := parseMemberIDs(receiptID, orderID)
	if err != nil {
		return ReceiptResponse{}, err
	}
	actorID := parseActor(userID)

	newValue, err := decimal.NewFromString(req.Value)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("invalid value: %w", err)
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, findErr := s.receipts.FindByID(txCtx, rID)
		if findErr != nil {
			return fmt.Errorf("receipt not found: %w", findErr)
		}
		if receipt.Status != model.ReceiptStatusDraft {
			return ErrReceiptNotDraft
		}

		snapshot, snapErr := s.receipts.FindSnapshot(txCtx, rID, oID)
		if snapErr != nil {
			return ErrOrderNotMember
		}
		snapValue, ok := snapshot.FieldValue(req.Field)
		if !ok {
			return ErrUnknownField
		}

		order, orderErr := s.orders.FindByID(txCtx, oID)
		if orderErr != nil {
			return fmt.Errorf("order not found: %w", orderErr)
		}

		oldValue, _ := orderFieldValue(order, req.Field)
		if updErr := s.orders.UpdateWithVersion(txCtx, order, map[string]interface{}{
			req.Field: newValue,
		}); updErr != nil {
			return updErr
		}

		if !newValue.Equal(snapValue) {
			change := model.FieldChange{
				ReceiptID: rID,
				OrderID:   oID,
				Field:     req.Field,
				OldValue:  oldValue,
				NewValue:  newValue,
				ChangedBy: actorID,
			}
			if chErr := s.receipts.CreateFieldChange(txCtx, &change); chErr != nil {
				return fmt.Errorf("failed to record field change: %w", chErr)
			}
		}

		if recErr := s.recomputeTotals(txCtx, receipt); recErr != nil {
			return recErr
		}

		return s.logAudit(txCtx, actorID, model.ActionEditReceiptField, "receipt", receipt.ID.String(), map[string]interface{}{
			"order_id": oID.String(),
			"field":    req.Field,
			"old":      oldValue.String(),
			"new":      newValue.String(),
		})
	})
	if err != nil {
		return ReceiptResponse{}, err
	}

	return s.Get(ctx, receiptID)
}

// Archive removes an empty draft receipt. A receipt that still has member
// orders is rejected.
func (s *receiptService) Archive(ctx context.Context, userID, receiptID string) error {
	rID, err := uuid.Parse(receiptID)
	if err != nil {
		return fmt.Errorf("invalid receipt id: %w", err)
	}
	actorID := parseActor(userID)

	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, findErr := s.receipts.FindByID(txCtx, rID)
		if findErr != nil {
			return fmt.Errorf("receipt not found: %w", findErr)
		}
		if receipt.Status != model.ReceiptStatusDraft {
			return ErrReceiptNotDraft
		}

		members, countErr := s.receipts.CountMembers(txCtx, rID)
		if countErr != nil {
			return fmt.Errorf("failed to count members: %w", countErr)
		}
		if members > 0 {
			return ErrReceiptNotEmpty
		}

		if delErr := s.receipts.Delete(txCtx, rID); delErr != nil {
			return fmt.Errorf("failed to archive receipt: %w", delErr)
		}

		return s.logAudit(txCtx, actorID, model.ActionArchiveReceipt, "receipt", receipt.ID.String(), map[string]interface{}{
			"number": receipt.Number,
		})
	})
}

func (s *receiptService) FieldChanges(ctx context.Context, receiptID string) ([]FieldChangeResponse, error) {
	rID, err := uuid.Parse(receiptID)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt id: %w", err)
	}
	changes, err := s.receipts.ListFieldChanges(ctx, rID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch field changes: %w", err)
	}

	result := make([]FieldChangeResponse, 0, len(changes))
	for _, c := range changes {
		resp := FieldChangeResponse{
			OrderID:   c.OrderID.String(),
			Field:     c.Field,
			OldValue:  c.OldValue.String(),
			NewValue:  c.NewValue.String(),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		}
		if c.ChangedBy != nil {
			resp.ChangedBy = c.ChangedBy.String()
		}
		result = append(result, resp)
	}
	return result, nil
}

// --- Helpers ---

// joinOrder links an order into the receipt, snapshots its numeric fields
// and parks its current status in previous_status.
func (s *receiptService) joinOrder(txCtx context.Context, receipt *model.Receipt, order *model.Order) error {
	link := model.ReceiptOrder{
		ReceiptID:    receipt.ID,
		OrderID:      order.ID,
		Contribution: order.EditableTotal(),
	}
	if err := s.receipts.CreateLink(txCtx, &link); err != nil {
		return fmt.Errorf("failed to link order %s: %w", order.ID, err)
	}

	snapshot := model.OrderSnapshot{
		ReceiptID:     receipt.ID,
		OrderID:       order.ID,
		PartPrice:     order.PartPrice,
		DeliveryCost:  order.DeliveryCost,
		ReceiptFee:    order.ReceiptFee,
		CodAmount:     order.CodAmount,
		TransportCost: order.TransportCost,
		Weight:        order.Weight,
	}
	if err := s.receipts.CreateSnapshot(txCtx, &snapshot); err != nil {
		return fmt.Errorf("failed to snapshot order %s: %w", order.ID, err)
	}

	return s.orders.UpdateWithVersion(txCtx, order, map[string]interface{}{
		"status":          model.OrderStatusInReceipt,
		"previous_status": order.Status,
		"receipt_group":   receipt.Number,
	})
}

// releaseOrder restores a removed member to its previous status unless
// another open receipt still claims it.
func (s *receiptService) releaseOrder(txCtx context.Context, order *model.Order, receiptID uuid.UUID) error {
	claims, err := s.receipts.CountOtherOpenClaims(txCtx, order.ID, receiptID)
	if err != nil {
		return fmt.Errorf("failed to check order claims: %w", err)
	}
	if claims > 0 {
		return nil
	}

	return s.orders.UpdateWithVersion(txCtx, order, map[string]interface{}{
		"status":          order.PreviousStatus,
		"previous_status": "",
		"receipt_group":   "",
	})
}

func (s *receiptService) recomputeTotals(txCtx context.Context, receipt *model.Receipt) error {
	members, err := s.receipts.MemberOrders(txCtx, receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to load member orders: %w", err)
	}

	for i := range members {
		if err := s.receipts.UpdateLinkContribution(txCtx, receipt.ID, members[i].ID, members[i].EditableTotal()); err != nil {
			return fmt.Errorf("failed to update contribution: %w", err)
		}
	}

	totals := computeTotals(members)
	return s.receipts.UpdateWithVersion(txCtx, receipt, map[string]interface{}{
		"parts_total":       totals.parts,
		"delivery_total":    totals.delivery,
		"receipt_fee_total": totals.receiptFee,
		"cod_total":         totals.cod,
		"transport_total":   totals.transport,
		"total_pln":         totals.pln,
		"total_usd":         totals.usd,
	})
}

func (s *receiptService) logAudit(txCtx context.Context, actorID *uuid.UUID, action, entityType, entityID string, payload map[string]interface{}) error {
	details, _ := json.Marshal(payload)
	entry := model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    string(details),
	}
	if err := s.audit.Log(txCtx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

type receiptTotals struct {
	parts, delivery, receiptFee, cod, transport decimal.Decimal
	pln, usd                                    decimal.Decimal
}

// computeTotals sums the editable fields across members. PLN and USD grand
// totals are accumulated separately; there is no conversion.
func computeTotals(orders []model.Order) receiptTotals {
	t := receiptTotals{
		parts:      decimal.Zero,
		delivery:   decimal.Zero,
		receiptFee: decimal.Zero,
		cod:        decimal.Zero,
		transport:  decimal.Zero,
		pln:        decimal.Zero,
		usd:        decimal.Zero,
	}
	for i := range orders {
		o := &orders[i]
		t.parts = t.parts.Add(o.PartPrice)
		t.delivery = t.delivery.Add(o.DeliveryCost)
		t.receiptFee = t.receiptFee.Add(o.ReceiptFee)
		t.cod = t.cod.Add(o.CodAmount)
		t.transport = t.transport.Add(o.TransportCost)
		switch o.Currency {
		case model.CurrencyUSD:
			t.usd = t.usd.Add(o.EditableTotal())
		default:
			t.pln = t.pln.Add(o.EditableTotal())
		}
	}
	return t
}

func orderFieldValue(order *model.Order, field string) (decimal.Decimal, bool) {
	switch field {
	case "part_price":
		return order.PartPrice, true
	case "delivery_cost":
		return order.DeliveryCost, true
	case "receipt_fee":
		return order.ReceiptFee, true
	case "cod_amount":
		return order.CodAmount, true
	case "transport_cost":
		return order.TransportCost, true
	}
	return decimal.Zero, false
}

func parseMemberIDs(receiptID, orderID string) (uuid.UUID, uuid.UUID, error) {
	rID, err := uuid.Parse(receiptID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid receipt id: %w", err)
	}
	oID, err := uuid.Parse(orderID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid order id: %w", err)
	}
	return rID, oID, nil
}

func parseActor(userID string) *uuid.UUID {
	if userID == "" {
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &parsed
}

func toReceiptResponse(r *model.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		ID:              r.ID.String(),
		Number:          r.Number,
		IssueDate:       r.IssueDate.Format("2006-01-02"),
		Status:          r.Status,
		SupplierID:      r.SupplierID.String(),
		PartsTotal:      r.PartsTotal.String(),
		DeliveryTotal:   r.DeliveryTotal.String(),
		ReceiptFeeTotal: r.ReceiptFeeTotal.String(),
		CodTotal:        r.CodTotal.String(),
		TransportTotal:  r.TransportTotal.String(),
		TotalPLN:        r.TotalPLN.String(),
		TotalUSD:        r.TotalUSD.String(),
		MemberCount:     len(r.Orders),
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.Supplier != nil {
		resp.SupplierName = r.Supplier.Name
	}
	if r.CreatedBy != nil {
		v := r.CreatedBy.String()
		resp.CreatedBy = &v
	}
	if r.ApprovedBy != nil {
		v := r.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	if r.ApprovedAt != nil {
		v := r.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &v
	}
	if r.SettledBy != nil {
		v := r.SettledBy.String()
		resp.SettledBy = &v
	}
	if r.SettledAt != nil {
		v := r.SettledAt.Format(time.RFC3339)
		resp.SettledAt = &v
	}
	return resp
}
