package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptStatus constants
const (
	ReceiptStatusDraft             = "DRAFT"
	ReceiptStatusApproved          = "APPROVED"
	ReceiptStatusSentForSettlement = "SENT_FOR_SETTLEMENT"
	ReceiptStatusSettled           = "SETTLED"
)

// receiptTransitions is the closed transition table for the receipt
// lifecycle. The settlement service is the only writer of Receipt.Status and
// consults this table before every change; nothing else may flip the field.
var receiptTransitions = map[string][]string{
	ReceiptStatusDraft:             {ReceiptStatusApproved},
	ReceiptStatusApproved:          {ReceiptStatusSentForSettlement},
	ReceiptStatusSentForSettlement: {ReceiptStatusSettled, ReceiptStatusApproved},
	ReceiptStatusSettled:           {ReceiptStatusSentForSettlement},
}

// CanTransition reports whether from -> to is a legal receipt status change
func CanTransition(from, to string) bool {
	for _, next := range receiptTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReversal reports whether from -> to walks the lifecycle backwards
// (compensating reversal, not forward progress)
func IsReversal(from, to string) bool {
	switch {
	case from == ReceiptStatusSettled && to == ReceiptStatusSentForSettlement:
		return true
	case from == ReceiptStatusSentForSettlement && to == ReceiptStatusApproved:
		return true
	}
	return false
}

// IsOpenReceiptStatus reports whether a receipt in this status still claims
// its member orders. A settled receipt is terminal; everything earlier keeps
// the members "in progress".
func IsOpenReceiptStatus(status string) bool {
	return status == ReceiptStatusDraft ||
		status == ReceiptStatusApproved ||
		status == ReceiptStatusSentForSettlement
}

// Receipt is a batch document grouping orders accepted from one supplier for
// joint review and settlement
type Receipt struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Number     string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	IssueDate  time.Time `gorm:"not null" json:"issue_date"`
	Status     string    `gorm:"type:varchar(30);not null;default:'DRAFT';index" json:"status"`
	SupplierID uuid.UUID `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Supplier   *Supplier `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`

	// Aggregated totals over the current members' editable fields. Kept in
	// sync inside the same transaction as every member mutation.
	PartsTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"parts_total"`
	DeliveryTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"delivery_total"`
	ReceiptFeeTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"receipt_fee_total"`
	CodTotal        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"cod_total"`
	TransportTotal  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"transport_total"`
	TotalPLN        decimal.Decimal `gorm:"column:total_pln;type:decimal(18,4);not null;default:0" json:"total_pln"`
	TotalUSD        decimal.Decimal `gorm:"column:total_usd;type:decimal(18,4);not null;default:0" json:"total_usd"`

	CreatedBy  *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	Creator    *User      `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	ApprovedBy *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	Approver   *User      `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	ApprovedAt *time.Time `json:"approved_at"`
	SettledBy  *uuid.UUID `gorm:"type:uuid" json:"settled_by"`
	Settler    *User      `gorm:"foreignKey:SettledBy" json:"settler,omitempty"`
	SettledAt  *time.Time `json:"settled_at"`

	Orders  []ReceiptOrder `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"orders,omitempty"`
	Version int            `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsOpen reports whether the receipt still claims its member orders
func (r *Receipt) IsOpen() bool {
	return IsOpenReceiptStatus(r.Status)
}

// ReceiptOrder links a receipt to a member order and carries the member's
// contribution amount at the last recompute
type ReceiptOrder struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_receipt_order,priority:1" json:"receipt_id"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_receipt_order,priority:2" json:"order_id"`
	Order        *Order          `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Contribution decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"contribution"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (ro *ReceiptOrder) BeforeCreate(tx *gorm.DB) error {
	if ro.ID == uuid.Nil {
		ro.ID = uuid.New()
	}
	return nil
}

// OrderSnapshot is an immutable copy of an order's numeric fields taken the
// moment it joins a receipt. It exists solely to flag reviewer edits; it is
// never updated and is deleted only when the order leaves the receipt.
type OrderSnapshot struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_member,priority:1" json:"receipt_id"`
	OrderID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_member,priority:2" json:"order_id"`
	PartPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"part_price"`
	DeliveryCost  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"delivery_cost"`
	ReceiptFee    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"receipt_fee"`
	CodAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cod_amount"`
	TransportCost decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"transport_cost"`
	Weight        decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"weight"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (s *OrderSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// FieldValue returns the snapshotted value of an editable field by name
func (s *OrderSnapshot) FieldValue(field string) (decimal.Decimal, bool) {
	switch field {
	case "part_price":
		return s.PartPrice, true
	case "delivery_cost":
		return s.DeliveryCost, true
	case "receipt_fee":
		return s.ReceiptFee, true
	case "cod_amount":
		return s.CodAmount, true
	case "transport_cost":
		return s.TransportCost, true
	}
	return decimal.Zero, false
}

// FieldChange is an append-only record of a reviewer edit to a snapshotted
// value before approval
type FieldChange struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID uuid.UUID       `gorm:"type:uuid;not null;index" json:"receipt_id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Field     string          `gorm:"type:varchar(30);not null" json:"field"`
	OldValue  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"old_value"`
	NewValue  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"new_value"`
	ChangedBy *uuid.UUID      `gorm:"type:uuid" json:"changed_by"`
	CreatedAt time.Time       `json:"created_at"`
}

func (f *FieldChange) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// AcceptedOrder is written once per member when the receipt is approved
type AcceptedOrder struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"receipt_id"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	AcceptedBy *uuid.UUID      `gorm:"type:uuid" json:"accepted_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (a *AcceptedOrder) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
