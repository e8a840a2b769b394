package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InviteCode is a single-use, time-limited signup token. The code itself is a
// plaintext random string; it gates registration only and never grants a
// session on its own.
type InviteCode struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Role      string     `gorm:"type:varchar(50);not null;default:'staff'" json:"role"`
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	UsedBy    *uuid.UUID `gorm:"type:uuid" json:"used_by"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (i *InviteCode) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the code can no longer be redeemed
func (i *InviteCode) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsUsed reports whether the code was already redeemed
func (i *InviteCode) IsUsed() bool {
	return i.UsedAt != nil
}
