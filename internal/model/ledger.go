package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType constants
const (
	TxTypeCharge  = "CHARGE"
	TxTypePayment = "PAYMENT"
)

// BalanceType constants scope ledger sums per cost category
const (
	BalanceParts      = "parts"
	BalanceDelivery   = "delivery"
	BalanceReceiptFee = "receipt_fee"
	BalanceCod        = "cod"
	BalanceTransport  = "transport"
	BalanceCard       = "card"
)

// TransactionStage tags a ledger entry with the lifecycle transition that
// produced it, so a reversal can find exactly the entries of that transition.
const (
	StageSendForSettlement = "SEND_FOR_SETTLEMENT"
	StageSettle            = "SETTLE"
	StageManual            = "MANUAL"
)

// Transaction is an append-only ledger row. A reversed entry is never
// deleted, only flagged; its effect is carried by a compensating entry with
// the opposite type referencing it via ReversalOf.
type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SupplierID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"supplier_id"`
	ReceiptID   *uuid.UUID      `gorm:"type:uuid;index" json:"receipt_id"` // Nullable for manual postings
	Type        string          `gorm:"type:varchar(10);not null" json:"type"`
	BalanceType string          `gorm:"type:varchar(20);not null;index" json:"balance_type"`
	Stage       string          `gorm:"type:varchar(30);not null;default:'MANUAL'" json:"stage"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency    string          `gorm:"type:varchar(5);not null;default:'PLN'" json:"currency"`
	Reversed    bool            `gorm:"not null;default:false;index" json:"reversed"`
	ReversalOf  *uuid.UUID      `gorm:"type:uuid;index" json:"reversal_of"`
	CreatedBy   *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// CardTransaction mirrors Transaction for the card balance: movements
// attributable to orders already paid by card rather than cash on delivery.
type CardTransaction struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SupplierID uuid.UUID       `gorm:"type:uuid;not null;index" json:"supplier_id"`
	ReceiptID  *uuid.UUID      `gorm:"type:uuid;index" json:"receipt_id"`
	Type       string          `gorm:"type:varchar(10);not null" json:"type"`
	Stage      string          `gorm:"type:varchar(30);not null;default:'MANUAL'" json:"stage"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency   string          `gorm:"type:varchar(5);not null;default:'PLN'" json:"currency"`
	Reversed   bool            `gorm:"not null;default:false;index" json:"reversed"`
	ReversalOf *uuid.UUID      `gorm:"type:uuid;index" json:"reversal_of"`
	CreatedBy  *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (t *CardTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
