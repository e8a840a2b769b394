package repository

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReceiptFilter struct {
	SupplierID *uuid.UUID
	Status     string
	Page       int
	Limit      int
}

type ReceiptRepository interface {
	Create(ctx context.Context, receipt *model.Receipt) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Receipt, error)
	List(ctx context.Context, filter ReceiptFilter) ([]model.Receipt, int64, error)
	UpdateWithVersion(ctx context.Context, receipt *model.Receipt, updates map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error
	GenerateNumber(ctx context.Context, issueDate time.Time) (string, error)

	// Membership
	CreateLink(ctx context.Context, link *model.ReceiptOrder) error
	DeleteLink(ctx context.Context, receiptID, orderID uuid.UUID) error
	UpdateLinkContribution(ctx context.Context, receiptID, orderID uuid.UUID, contribution decimal.Decimal) error
	MemberOrders(ctx context.Context, receiptID uuid.UUID) ([]model.Order, error)
	CountMembers(ctx context.Context, receiptID uuid.UUID) (int64, error)
	CountOtherOpenClaims(ctx context.Context, orderID, excludeReceiptID uuid.UUID) (int64, error)

	// Snapshots and review history
	CreateSnapshot(ctx context.Context, snapshot *model.OrderSnapshot) error
	FindSnapshot(ctx context.Context, receiptID, orderID uuid.UUID) (*model.OrderSnapshot, error)
	DeleteSnapshot(ctx context.Context, receiptID, orderID uuid.UUID) error
	CreateFieldChange(ctx context.Context, change *model.FieldChange) error
	ListFieldChanges(ctx context.Context, receiptID uuid.UUID) ([]model.FieldChange, error)
	CreateAcceptedOrder(ctx context.Context, accepted *model.AcceptedOrder) error
}

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *model.Receipt) error {
	return GetDB(ctx, r.db).Create(receipt).Error
}

func (r *receiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Receipt, error) {
	var receipt model.Receipt
	if err := GetDB(ctx, r.db).
		Preload("Supplier").
		Preload("Orders").
		Preload("Orders.Order").
		First(&receipt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) List(ctx context.Context, filter ReceiptFilter) ([]model.Receipt, int64, error) {
	var receipts []model.Receipt
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Receipt{})
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
		Find(&receipts).Error; err != nil {
		return nil, 0, err
	}

	return receipts, total, nil
}

// UpdateWithVersion applies updates only if the receipt's version is still
// the one loaded; the version column is bumped in the same statement.
func (r *receiptRepository) UpdateWithVersion(ctx context.Context, receipt *model.Receipt, updates map[string]interface{}) error {
	updates["version"] = receipt.Version + 1
	result := GetDB(ctx, r.db).Model(&model.Receipt{}).
		Where("id = ? AND version = ?", receipt.ID, receipt.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	receipt.Version++
	return nil
}

func (r *receiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Delete(&model.ReceiptOrder{}, "receipt_id = ?", id).Error; err != nil {
		return err
	}
	if err := db.Delete(&model.OrderSnapshot{}, "receipt_id = ?", id).Error; err != nil {
		return err
	}
	return db.Delete(&model.Receipt{}, "id = ?", id).Error
}

// GenerateNumber produces the next RCP-YYYYMMDD-NNNNN document number. Under
// Postgres an advisory lock serializes concurrent generation for the same
// day prefix; other dialects fall back to the plain count.
func (r *receiptRepository) GenerateNumber(ctx context.Context, issueDate time.Time) (string, error) {
	db := GetDB(ctx, r.db)
	prefix := "RCP-" + issueDate.Format("20060102") + "-"

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return "", err
		}
	}

	var count int64
	if err := db.Model(&model.Receipt{}).
		Where("number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

func (r *receiptRepository) CreateLink(ctx context.Context, link *model.ReceiptOrder) error {
	return GetDB(ctx, r.db).Create(link).Error
}

func (r *receiptRepository) DeleteLink(ctx context.Context, receiptID, orderID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Delete(&model.ReceiptOrder{}, "receipt_id = ? AND order_id = ?", receiptID, orderID).Error
}

func (r *receiptRepository) UpdateLinkContribution(ctx context.Context, receiptID, orderID uuid.UUID, contribution decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.ReceiptOrder{}).
		Where("receipt_id = ? AND order_id = ?", receiptID, orderID).
		Update("contribution", contribution).Error
}

func (r *receiptRepository) MemberOrders(ctx context.Context, receiptID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	err := GetDB(ctx, r.db).
		Joins("JOIN receipt_orders ON receipt_orders.order_id = orders.id").
		Where("receipt_orders.receipt_id = ?", receiptID).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *receiptRepository) CountMembers(ctx context.Context, receiptID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ReceiptOrder{}).
		Where("receipt_id = ?", receiptID).
		Count(&count).Error
	return count, err
}

// CountOtherOpenClaims counts receipts other than excludeReceiptID that
// reference the order and are still open. An order keeps its in-progress
// status as long as any referencing receipt remains open.
func (r *receiptRepository) CountOtherOpenClaims(ctx context.Context, orderID, excludeReceiptID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ReceiptOrder{}).
		Joins("JOIN receipts ON receipts.id = receipt_orders.receipt_id").
		Where("receipt_orders.order_id = ?", orderID).
		Where("receipt_orders.receipt_id <> ?", excludeReceiptID).
		Where("receipts.status IN ?", []string{
			model.ReceiptStatusDraft,
			model.ReceiptStatusApproved,
			model.ReceiptStatusSentForSettlement,
		}).
		Count(&count).Error
	return count, err
}

func (r *receiptRepository) CreateSnapshot(ctx context.Context, snapshot *model.OrderSnapshot) error {
	return GetDB(ctx, r.db).Create(snapshot).Error
}

func (r *receiptRepository) FindSnapshot(ctx context.Context, receiptID, orderID uuid.UUID) (*model.OrderSnapshot, error) {
	var snapshot model.OrderSnapshot
	if err := GetDB(ctx, r.db).
		First(&snapshot, "receipt_id = ? AND order_id = ?", receiptID, orderID).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *receiptRepository) DeleteSnapshot(ctx context.Context, receiptID, orderID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Delete(&model.OrderSnapshot{}, "receipt_id = ? AND order_id = ?", receiptID, orderID).Error
}

func (r *receiptRepository) CreateFieldChange(ctx context.Context, change *model.FieldChange) error {
	return GetDB(ctx, r.db).Create(change).Error
}

func (r *receiptRepository) ListFieldChanges(ctx context.Context, receiptID uuid.UUID) ([]model.FieldChange, error) {
	var changes []model.FieldChange
	err := GetDB(ctx, r.db).
		Where("receipt_id = ?", receiptID).
		Order("created_at ASC").
		Find(&changes).Error
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *receiptRepository) CreateAcceptedOrder(ctx context.Context, accepted *model.AcceptedOrder) error {
	return GetDB(ctx, r.db).Create(accepted).Error
}
