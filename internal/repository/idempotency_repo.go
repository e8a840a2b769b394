package repository

import (
	"context"

	"procurement/internal/model"

	"gorm.io/gorm"
)

type IdempotencyRepository interface {
	Find(ctx context.Context, key string) (*model.IdempotencyKey, error)
	Create(ctx context.Context, record *model.IdempotencyKey) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Find(ctx context.Context, key string) (*model.IdempotencyKey, error) {
	var record model.IdempotencyKey
	if err := GetDB(ctx, r.db).First(&record, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *idempotencyRepository) Create(ctx context.Context, record *model.IdempotencyKey) error {
	return GetDB(ctx, r.db).Create(record).Error
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := GetDB(ctx, r.db).
		Where("expires_at < CURRENT_TIMESTAMP").
		Delete(&model.IdempotencyKey{})
	return result.RowsAffected, result.Error
}
