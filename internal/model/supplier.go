package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Supplier represents a counterparty whose receipts are settled against
// running balances
type Supplier struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string            `gorm:"type:varchar(255);not null" json:"name"`
	ContactPerson string            `gorm:"type:varchar(255)" json:"contact_person"`
	Phone         string            `gorm:"type:varchar(50)" json:"phone"`
	Email         string            `gorm:"type:varchar(255)" json:"email"`
	BankAccount   string            `gorm:"type:varchar(100)" json:"bank_account"`
	IsActive      bool              `gorm:"default:true" json:"is_active"`
	Balances      []SupplierBalance `gorm:"foreignKey:SupplierID;constraint:OnDelete:CASCADE" json:"balances,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SupplierBalance is a running total per supplier, balance type and currency.
// It is mutated only inside settlement transactions and is always derivable
// from the non-reversed ledger entries.
type SupplierBalance struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SupplierID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_supplier_balance,priority:1" json:"supplier_id"`
	BalanceType string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_supplier_balance,priority:2" json:"balance_type"`
	Currency    string          `gorm:"type:varchar(5);not null;uniqueIndex:idx_supplier_balance,priority:3" json:"currency"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (b *SupplierBalance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
