package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderFilter struct {
	SupplierID *uuid.UUID
	Status     string
	Page       int
	Limit      int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	Save(ctx context.Context, order *model.Order) error
	UpdateWithVersion(ctx context.Context, order *model.Order, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status, previousStatus string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).Preload("Supplier").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Order{})
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Supplier").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) Save(ctx context.Context, order *model.Order) error {
	return GetDB(ctx, r.db).Save(order).Error
}

// UpdateWithVersion applies updates only if the order's version is still the
// one loaded; the version column is bumped in the same statement.
func (r *orderRepository) UpdateWithVersion(ctx context.Context, order *model.Order, updates map[string]interface{}) error {
	updates["version"] = order.Version + 1
	result := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	order.Version++
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, previousStatus string) error {
	return GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"previous_status": previousStatus,
		}).Error
}

func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Delete(&model.Order{}, "id = ?", id).Error
}
