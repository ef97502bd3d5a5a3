package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pktracker/internal/model"
)

// AdminRepository stores per-group admin membership.
type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Exists(ctx context.Context, groupID, userID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Admin{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("find admin: %w", err)
	}
	return n > 0, nil
}

// Add inserts membership; it reports false when the user already was an admin.
func (r *AdminRepository) Add(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Admin{GroupID: groupID, UserID: userID})
	if res.Error != nil {
		return false, fmt.Errorf("create admin: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Remove deletes membership; it reports false when there was nothing to delete.
func (r *AdminRepository) Remove(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.Admin{})
	if res.Error != nil {
		return false, fmt.Errorf("delete admin: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *AdminRepository) ListByGroup(ctx context.Context, groupID string) ([]model.Admin, error) {
	var admins []model.Admin
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).Order("created_at ASC").Find(&admins).Error; err != nil {
		return nil, err
	}
	return admins, nil
}
