package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateOrder = "CREATE_ORDER"
	ActionUpdateOrder = "UPDATE_ORDER"
	ActionDeleteOrder = "DELETE_ORDER"

	// Receipt lifecycle actions
	ActionCreateReceipt      = "CREATE_RECEIPT"
	ActionAddReceiptOrder    = "ADD_RECEIPT_ORDER"
	ActionRemoveReceiptOrder = "REMOVE_RECEIPT_ORDER"
	ActionEditReceiptField   = "EDIT_RECEIPT_FIELD"
	ActionArchiveReceipt     = "ARCHIVE_RECEIPT"
	ActionApproveReceipt     = "APPROVE_RECEIPT"
	ActionSendForSettlement  = "SEND_FOR_SETTLEMENT"
	ActionSettleReceipt      = "SETTLE_RECEIPT"
	ActionReverseReceipt     = "REVERSE_RECEIPT"

	// Ledger actions
	ActionPostLedgerEntry    = "POST_LEDGER_ENTRY"
	ActionReverseLedgerEntry = "REVERSE_LEDGER_ENTRY"

	// Session actions
	ActionSignup           = "SIGNUP"
	ActionLogin            = "LOGIN"
	ActionLogout           = "LOGOUT"
	ActionCreateInviteCode = "CREATE_INVITE_CODE"
)

// AuditLog tracks Who, What, and When for every mutation. Rows are written
// inside the same transaction as the mutation they describe.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for system-initiated actions
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(50);index" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
