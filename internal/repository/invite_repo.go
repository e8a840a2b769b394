package repository

import (
	"context"

	"procurement/internal/model"

	"gorm.io/gorm"
)

type InviteRepository interface {
	Create(ctx context.Context, invite *model.InviteCode) error
	FindByCode(ctx context.Context, code string) (*model.InviteCode, error)
	Update(ctx context.Context, invite *model.InviteCode) error
	List(ctx context.Context, page, limit int) ([]model.InviteCode, int64, error)
}

type inviteRepository struct {
	db *gorm.DB
}

func NewInviteRepository(db *gorm.DB) InviteRepository {
	return &inviteRepository{db: db}
}

func (r *inviteRepository) Create(ctx context.Context, invite *model.InviteCode) error {
	return GetDB(ctx, r.db).Create(invite).Error
}

// FindByCode matches the code case-insensitively; codes are issued uppercase
// but users retype them.
func (r *inviteRepository) FindByCode(ctx context.Context, code string) (*model.InviteCode, error) {
	var invite model.InviteCode
	if err := GetDB(ctx, r.db).First(&invite, "UPPER(code) = UPPER(?)", code).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *inviteRepository) Update(ctx context.Context, invite *model.InviteCode) error {
	return GetDB(ctx, r.db).Save(invite).Error
}

func (r *inviteRepository) List(ctx context.Context, page, limit int) ([]model.InviteCode, int64, error) {
	var invites []model.InviteCode
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.InviteCode{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&invites).Error; err != nil {
		return nil, 0, err
	}

	return invites, total, nil
}
