package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditFilter struct {
	UserID *uuid.UUID
	Action string
	Page   int
	Limit  int
}

// AuditStats is the count/age summary consumed by the admin screen
type AuditStats struct {
	Total    int64      `json:"total"`
	Archived int64      `json:"archived"`
	OldestAt *time.Time `json:"oldest_at"`
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error)
	Stats(ctx context.Context) (AuditStats, error)
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeArchivedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	query := GetDB(ctx, r.db).Model(&model.AuditLog{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("User").Order("created_at desc").Offset(offset).Limit(filter.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (r *auditRepository) Stats(ctx context.Context) (AuditStats, error) {
	var stats AuditStats
	db := GetDB(ctx, r.db)

	if err := db.Model(&model.AuditLog{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&model.AuditLog{}).Where("archived_at IS NOT NULL").Count(&stats.Archived).Error; err != nil {
		return stats, err
	}

	var oldest model.AuditLog
	err := db.Order("created_at asc").First(&oldest).Error
	if err == gorm.ErrRecordNotFound {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	stats.OldestAt = &oldest.CreatedAt
	return stats, nil
}

func (r *auditRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	result := GetDB(ctx, r.db).Model(&model.AuditLog{}).
		Where("created_at < ? AND archived_at IS NULL", cutoff).
		Update("archived_at", now)
	return result.RowsAffected, result.Error
}

func (r *auditRepository) PurgeArchivedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := GetDB(ctx, r.db).
		Where("archived_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&model.AuditLog{})
	return result.RowsAffected, result.Error
}
