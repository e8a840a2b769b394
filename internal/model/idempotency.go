package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdempotencyKey stores processed transition requests so a retried or
// duplicated submission replays the original response instead of re-running
// the transition (and double-posting ledger entries).
type IdempotencyKey struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Key          string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"key"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Endpoint     string     `gorm:"type:varchar(255);not null" json:"endpoint"`
	RequestHash  string     `gorm:"type:varchar(64)" json:"request_hash"` // SHA256 of request body
	ResponseCode int        `gorm:"not null" json:"response_code"`
	ResponseBody string     `gorm:"type:text" json:"response_body"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (i *IdempotencyKey) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether the stored response may no longer be replayed
func (i *IdempotencyKey) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}
