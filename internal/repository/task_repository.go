package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pktracker/internal/model"
	"pktracker/internal/period"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// TaskStats summarises activity on a single task.
type TaskStats struct {
	Participants int64
	Checkins     int64
	TodayUsers   int64
	LastCheckin  *time.Time
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByName(ctx context.Context, groupID, name string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("group_id = ? AND name = ?", groupID, name).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ListByGroup(ctx context.Context, groupID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) ListEnabled(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListDueReminders returns enabled tasks whose reminder is set to clock (HH:MM).
func (r *TaskRepository) ListDueReminders(ctx context.Context, clock string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND reminder_time = ?", true, clock).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListWithRule returns enabled tasks whose reward rule for category is switched on.
func (r *TaskRepository) ListWithRule(ctx context.Context, category model.BonusCategory) ([]model.Task, error) {
	column, err := ruleColumn(category)
	if err != nil {
		return nil, err
	}
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where(column+" = ?", true).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update writes the given columns to an existing task.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task, updates map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Delete removes a task together with its check-ins and their bonus entries.
func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.BonusEntry{}).Error; err != nil {
			return fmt.Errorf("delete bonuses: %w", err)
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&model.CheckinEvent{}).Error; err != nil {
			return fmt.Errorf("delete checkins: %w", err)
		}
		if err := tx.Delete(&model.Task{}, taskID).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// Stats counts participants and check-ins on a task; today bounds the
// "checked in today" figure.
func (r *TaskRepository) Stats(ctx context.Context, taskID uint, today period.Window) (TaskStats, error) {
	var stats TaskStats
	db := r.db.WithContext(ctx).Model(&model.CheckinEvent{}).Where("task_id = ?", taskID)

	if err := db.Session(&gorm.Session{}).Distinct("user_id").Count(&stats.Participants).Error; err != nil {
		return stats, fmt.Errorf("count participants: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Count(&stats.Checkins).Error; err != nil {
		return stats, fmt.Errorf("count checkins: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("checked_in_at >= ? AND checked_in_at < ?", today.Start.UTC(), today.End.UTC()).
		Distinct("user_id").
		Count(&stats.TodayUsers).Error; err != nil {
		return stats, fmt.Errorf("count today users: %w", err)
	}

	var last model.CheckinEvent
	err := db.Session(&gorm.Session{}).Order("checked_in_at DESC").Limit(1).Find(&last).Error
	if err != nil {
		return stats, fmt.Errorf("last checkin: %w", err)
	}
	if last.ID != 0 {
		at := last.CheckedInAt
		stats.LastCheckin = &at
	}
	return stats, nil
}

func ruleColumn(category model.BonusCategory) (string, error) {
	switch category {
	case model.BonusFirst:
		return "first_checkin_enabled", nil
	case model.BonusConsecutive:
		return "consecutive_checkin_enabled", nil
	case model.BonusWeekChampion:
		return "weekly_champion_enabled", nil
	case model.BonusMonthChampion:
		return "monthly_champion_enabled", nil
	}
	return "", fmt.Errorf("no reward rule for category %q", category)
}
