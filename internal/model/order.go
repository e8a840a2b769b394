package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus constants
const (
	OrderStatusNew         = "NEW"
	OrderStatusInReceipt   = "IN_RECEIPT"
	OrderStatusAccepted    = "ACCEPTED"
	OrderStatusUnderReview = "UNDER_REVIEW"
	OrderStatusSettled     = "SETTLED"
)

// Currency constants. PLN and USD amounts are tracked separately and never
// combined; there is no conversion anywhere in the system.
const (
	CurrencyPLN = "PLN"
	CurrencyUSD = "USD"
)

// PaymentType constants. The labels come from the operations team verbatim:
// "оплачено" marks an order already paid by card upfront, everything else
// settles as cash on delivery.
const (
	PaymentTypeCardPaid       = "оплачено"
	PaymentTypeCashOnDelivery = "наложенный платеж"
)

// Order represents a purchase order moving through intake, receipt grouping
// and settlement
type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientRef     string          `gorm:"type:varchar(100);not null;index" json:"client_ref"`
	SupplierID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Supplier      *Supplier       `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	PartPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"part_price"`
	DeliveryCost  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"delivery_cost"`
	ReceiptFee    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"receipt_fee"`
	CodAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"cod_amount"`
	TransportCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"transport_cost"`
	Weight        decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"weight"`
	Currency      string          `gorm:"type:varchar(5);not null;default:'PLN'" json:"currency"`
	PaymentType   string          `gorm:"type:varchar(50);not null" json:"payment_type"`
	Status        string          `gorm:"type:varchar(20);not null;default:'NEW';index" json:"status"`
	// PreviousStatus holds the status the order had before it joined a
	// receipt, so removal can restore it exactly.
	PreviousStatus string         `gorm:"type:varchar(20)" json:"previous_status"`
	ReceiptGroup   string         `gorm:"type:varchar(30);index" json:"receipt_group"`
	Version        int            `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// PaidByCard is the single canonical predicate for card-eligible settlement.
// The legacy system matched the label in several places with diverging extra
// filters; every card subtotal in this codebase must go through this method.
func (o *Order) PaidByCard() bool {
	return o.PaymentType == PaymentTypeCardPaid
}

// EditableTotal sums the reviewer-editable monetary fields of the order.
// Receipt aggregate totals are defined as the sum of this value over the
// current members.
func (o *Order) EditableTotal() decimal.Decimal {
	return o.PartPrice.
		Add(o.DeliveryCost).
		Add(o.ReceiptFee).
		Add(o.CodAmount).
		Add(o.TransportCost)
}
