package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pktracker/internal/model"
)

// MemberRepository keeps display names of users seen in each group.
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Upsert creates the member or refreshes its names.
func (r *MemberRepository) Upsert(ctx context.Context, member *model.Member) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "username", "updated_at"}),
		}).
		Create(member).Error
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// Names maps the given user ids to stored display names. Unknown ids are absent.
func (r *MemberRepository) Names(ctx context.Context, groupID string, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var members []model.Member
	if err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id IN ?", groupID, userIDs).
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		name := m.DisplayName
		if name == "" {
			name = m.Username
		}
		if name != "" {
			out[m.UserID] = name
		}
	}
	return out, nil
}
