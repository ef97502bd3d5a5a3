package service

import (
	"context"
	"strings"
	"time"

	"pktracker/internal/repository"
)

const (
	LeaderboardSize = 10
	DefaultPageSize = 5
)

// TaskScore is one user's standing on a single task.
type TaskScore struct {
	TaskName string `json:"task"`
	Checkins int    `json:"checkins"`
	Points   int    `json:"points"`
}

// RankEntry is one row of a leaderboard.
type RankEntry struct {
	UserID      string      `json:"user_id"`
	Checkins    int         `json:"checkins"`
	Points      int         `json:"points"`
	LastCheckin time.Time   `json:"last_checkin"`
	Tasks       []TaskScore `json:"tasks"`
}

// Leaderboard is the top of a group's (or one task's) ranking.
type Leaderboard struct {
	GroupID  string      `json:"group_id"`
	TaskName string      `json:"task,omitempty"` // empty for all tasks
	Entries  []RankEntry `json:"entries"`
}

// DetailRecord is one check-in in a user's history.
type DetailRecord struct {
	TaskName    string    `json:"task"`
	CheckedInAt time.Time `json:"time"`
	Content     string    `json:"content"`
	Points      int       `json:"points"`
}

// UserDetail is one page of a user's check-in history.
type UserDetail struct {
	GroupID    string         `json:"group_id"`
	UserID     string         `json:"user_id"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int64          `json:"total"`
	Records    []DetailRecord `json:"records"`
}

// RankingService folds the ledger into leaderboards and histories. It keeps
// no state of its own; every call reads the store.
type RankingService struct {
	tasks  *repository.TaskRepository
	ledger *repository.CheckinRepository
	loc    *time.Location
}

func NewRankingService(tasks *repository.TaskRepository, ledger *repository.CheckinRepository, loc *time.Location) *RankingService {
	if loc == nil {
		loc = time.Local
	}
	return &RankingService{tasks: tasks, ledger: ledger, loc: loc}
}

// Leaderboard ranks users by total points, earlier last check-in first on
// ties. An empty taskName aggregates every enabled task of the group.
func (s *RankingService) Leaderboard(ctx context.Context, groupID, taskName string) (*Leaderboard, error) {
	if groupID == "" {
		return nil, invalidParam("group is required")
	}
	taskName = strings.TrimSpace(taskName)

	var taskID *uint
	if taskName != "" {
		task, err := findTask(ctx, s.tasks, groupID, taskName)
		if err != nil {
			return nil, err
		}
		taskID = &task.ID
	}

	totals, err := s.ledger.TopUsers(ctx, groupID, taskID, LeaderboardSize)
	if err != nil {
		return nil, storeErr("leaderboard", err)
	}
	userIDs := make([]string, 0, len(totals))
	for _, t := range totals {
		userIDs = append(userIDs, t.UserID)
	}
	perTask, err := s.ledger.UserTaskTotals(ctx, groupID, taskID, userIDs)
	if err != nil {
		return nil, storeErr("leaderboard tasks", err)
	}

	return &Leaderboard{GroupID: groupID, TaskName: taskName, Entries: buildRanking(totals, perTask, s.loc)}, nil
}

// buildRanking keeps the store's order of totals and attaches each user's
// per-task breakdown.
func buildRanking(totals []repository.UserTotal, perTask []repository.UserTaskTotal, loc *time.Location) []RankEntry {
	tasks := make(map[string][]TaskScore, len(totals))
	for _, row := range perTask {
		tasks[row.UserID] = append(tasks[row.UserID], TaskScore{
			TaskName: row.TaskName,
			Checkins: row.Checkins,
			Points:   row.Points,
		})
	}

	entries := make([]RankEntry, 0, len(totals))
	for _, t := range totals {
		entries = append(entries, RankEntry{
			UserID:      t.UserID,
			Checkins:    t.Checkins,
			Points:      t.Points,
			LastCheckin: t.LastCheckin.In(loc),
			Tasks:       tasks[t.UserID],
		})
	}
	return entries
}

// UserDetail returns one page of a user's check-ins, newest first. The page is
// clamped to the available range; ErrNoRecords is returned when the user has none.
func (s *RankingService) UserDetail(ctx context.Context, groupID, userID string, page, pageSize int) (*UserDetail, error) {
	if groupID == "" || userID == "" {
		return nil, invalidParam("group and user are required")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total, err := s.ledger.CountUserCheckins(ctx, groupID, userID)
	if err != nil {
		return nil, storeErr("count user checkins", err)
	}
	if total == 0 {
		return nil, ErrNoRecords
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	rows, err := s.ledger.UserCheckinPage(ctx, groupID, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storeErr("user checkins", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRecords
	}

	detail := &UserDetail{
		GroupID:    groupID,
		UserID:     userID,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
		Records:    make([]DetailRecord, 0, len(rows)),
	}
	for _, row := range rows {
		detail.Records = append(detail.Records, DetailRecord{
			TaskName:    row.TaskName,
			CheckedInAt: row.CheckedInAt.In(s.loc),
			Content:     row.Content,
			Points:      row.Points,
		})
	}
	return detail, nil
}
