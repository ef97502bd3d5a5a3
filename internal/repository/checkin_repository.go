package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pktracker/internal/model"
	"pktracker/internal/period"
)

// CheckinRepository is the ledger of check-in events and their bonus entries.
type CheckinRepository struct {
	db *gorm.DB
}

func NewCheckinRepository(db *gorm.DB) *CheckinRepository {
	return &CheckinRepository{db: db}
}

// ScoredCheckin is a check-in joined with its task and the sum of its bonus entries.
type ScoredCheckin struct {
	EventID     uint
	TaskID      uint
	TaskName    string
	UserID      string
	CheckedInAt time.Time
	Content     string
	Points      int
}

// InTx runs fn inside a single transaction with a repository bound to it.
func (r *CheckinRepository) InTx(ctx context.Context, fn func(tx *CheckinRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&CheckinRepository{db: tx})
	})
}

// LockTask re-reads a task for update. Postgres takes a row lock; SQLite
// already holds the database write lock for the transaction.
func (r *CheckinRepository) LockTask(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// CountUserInWindow counts a user's check-ins on a task inside w.
func (r *CheckinRepository) CountUserInWindow(ctx context.Context, taskID uint, userID string, w period.Window) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CheckinEvent{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Where("checked_in_at >= ? AND checked_in_at < ?", w.Start.UTC(), w.End.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count user checkins: %w", err)
	}
	return n, nil
}

// CountTaskInWindow counts all users' check-ins on a task inside w.
func (r *CheckinRepository) CountTaskInWindow(ctx context.Context, taskID uint, w period.Window) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CheckinEvent{}).
		Where("task_id = ?", taskID).
		Where("checked_in_at >= ? AND checked_in_at < ?", w.Start.UTC(), w.End.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count task checkins: %w", err)
	}
	return n, nil
}

// CountUsersInWindow counts distinct users who checked in on a task inside w.
func (r *CheckinRepository) CountUsersInWindow(ctx context.Context, taskID uint, w period.Window) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.CheckinEvent{}).
		Where("task_id = ?", taskID).
		Where("checked_in_at >= ? AND checked_in_at < ?", w.Start.UTC(), w.End.UTC()).
		Distinct("user_id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count task users: %w", err)
	}
	return n, nil
}

// UserTimesBefore returns a user's check-in times on a task in [from, until), newest first.
func (r *CheckinRepository) UserTimesBefore(ctx context.Context, taskID uint, userID string, from, until time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.db.WithContext(ctx).Model(&model.CheckinEvent{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Where("checked_in_at >= ? AND checked_in_at < ?", from.UTC(), until.UTC()).
		Order("checked_in_at DESC").
		Pluck("checked_in_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("list user checkin times: %w", err)
	}
	return times, nil
}

// EventsInWindow lists a task's check-ins inside w, oldest first.
func (r *CheckinRepository) EventsInWindow(ctx context.Context, taskID uint, w period.Window) ([]model.CheckinEvent, error) {
	var events []model.CheckinEvent
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Where("checked_in_at >= ? AND checked_in_at < ?", w.Start.UTC(), w.End.UTC()).
		Order("checked_in_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list window checkins: %w", err)
	}
	return events, nil
}

func (r *CheckinRepository) CreateEvent(ctx context.Context, event *model.CheckinEvent) error {
	event.CheckedInAt = event.CheckedInAt.UTC()
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create checkin: %w", err)
	}
	return nil
}

func (r *CheckinRepository) CreateBonus(ctx context.Context, entry *model.BonusEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create bonus: %w", err)
	}
	return nil
}

// SettlementExists reports whether a settlement entry was already recorded
// for the task, category and window start.
func (r *CheckinRepository) SettlementExists(ctx context.Context, taskID uint, category model.BonusCategory, start time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BonusEntry{}).
		Where("task_id = ? AND category = ? AND period_start = ?", taskID, category, start.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check settlement: %w", err)
	}
	return n > 0, nil
}

// CreateSettlement inserts a settlement entry unless one already exists for the
// same (task, category, period start). It reports whether a row was written.
func (r *CheckinRepository) CreateSettlement(ctx context.Context, entry *model.BonusEntry) (bool, error) {
	if entry.PeriodStart == nil {
		return false, fmt.Errorf("settlement entry needs a period start")
	}
	start := entry.PeriodStart.UTC()
	entry.PeriodStart = &start

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("create settlement: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// BonusesForEvent returns the entries attached to a check-in.
func (r *CheckinRepository) BonusesForEvent(ctx context.Context, eventID uint) ([]model.BonusEntry, error) {
	var entries []model.BonusEntry
	if err := r.db.WithContext(ctx).Where("checkin_event_id = ?", eventID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list bonuses: %w", err)
	}
	return entries, nil
}

// Settlements lists settlement entries of a category for a task.
func (r *CheckinRepository) Settlements(ctx context.Context, taskID uint, category model.BonusCategory) ([]model.BonusEntry, error) {
	var entries []model.BonusEntry
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND category = ?", taskID, category).
		Order("period_start ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return entries, nil
}

// scoredQuery joins check-ins with their task and per-event bonus sum.
func (r *CheckinRepository) scoredQuery(ctx context.Context, groupID string) *gorm.DB {
	points := r.db.Model(&model.BonusEntry{}).
		Select("checkin_event_id, SUM(points) AS points").
		Group("checkin_event_id")

	return r.db.WithContext(ctx).Table("checkin_events AS e").
		Select("e.id AS event_id, e.task_id, t.name AS task_name, e.user_id, e.checked_in_at, e.content, COALESCE(p.points, 0) AS points").
		Joins("JOIN tasks AS t ON t.id = e.task_id").
		Joins("LEFT JOIN (?) AS p ON p.checkin_event_id = e.id", points).
		Where("t.group_id = ? AND t.enabled = ?", groupID, true)
}

// UserTotal is one user's aggregate over the scored check-ins of a group.
type UserTotal struct {
	UserID      string
	Checkins    int
	Points      int
	LastCheckin time.Time
}

// UserTaskTotal is one user's aggregate on a single task.
type UserTaskTotal struct {
	UserID   string
	TaskID   uint
	TaskName string
	Checkins int
	Points   int
}

type userTotalRow struct {
	UserID      string
	Checkins    int
	Points      int
	LastCheckin dbTime
}

// scoredIn narrows scoredQuery to one task when taskID is set.
func (r *CheckinRepository) scoredIn(ctx context.Context, groupID string, taskID *uint) *gorm.DB {
	q := r.scoredQuery(ctx, groupID)
	if taskID != nil {
		q = q.Where("e.task_id = ?", *taskID)
	}
	return q
}

// TopUsers ranks the group's users (or one task's) by total points, earlier
// last check-in first on ties, and returns at most limit rows.
func (r *CheckinRepository) TopUsers(ctx context.Context, groupID string, taskID *uint, limit int) ([]UserTotal, error) {
	var rows []userTotalRow
	err := r.db.WithContext(ctx).Table("(?) AS s", r.scoredIn(ctx, groupID, taskID)).
		Select("s.user_id, COUNT(*) AS checkins, SUM(s.points) AS points, MAX(s.checked_in_at) AS last_checkin").
		Group("s.user_id").
		Order("points DESC, last_checkin ASC, s.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	out := make([]UserTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, UserTotal{
			UserID:      row.UserID,
			Checkins:    row.Checkins,
			Points:      row.Points,
			LastCheckin: row.LastCheckin.Time,
		})
	}
	return out, nil
}

// UserTaskTotals breaks the given users' totals down per task. Each user's
// tasks come in the order they first checked in.
func (r *CheckinRepository) UserTaskTotals(ctx context.Context, groupID string, taskID *uint, userIDs []string) ([]UserTaskTotal, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []UserTaskTotal
	err := r.db.WithContext(ctx).Table("(?) AS s", r.scoredIn(ctx, groupID, taskID)).
		Select("s.user_id, s.task_id, s.task_name, COUNT(*) AS checkins, SUM(s.points) AS points").
		Where("s.user_id IN ?", userIDs).
		Group("s.user_id, s.task_id, s.task_name").
		Order("s.user_id ASC, MIN(s.checked_in_at) ASC, s.task_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("user task totals: %w", err)
	}
	return rows, nil
}

// CountUserCheckins counts a user's check-ins across the group's enabled tasks.
func (r *CheckinRepository) CountUserCheckins(ctx context.Context, groupID, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table("checkin_events AS e").
		Joins("JOIN tasks AS t ON t.id = e.task_id").
		Where("t.group_id = ? AND t.enabled = ? AND e.user_id = ?", groupID, true, userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count user checkins: %w", err)
	}
	return n, nil
}

// UserCheckinPage returns one page of a user's scored check-ins, newest first.
func (r *CheckinRepository) UserCheckinPage(ctx context.Context, groupID, userID string, limit, offset int) ([]ScoredCheckin, error) {
	var rows []ScoredCheckin
	err := r.scoredQuery(ctx, groupID).
		Where("e.user_id = ?", userID).
		Order("e.checked_in_at DESC, e.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list user checkins: %w", err)
	}
	return rows, nil
}
