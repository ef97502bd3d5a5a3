package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pktracker/internal/model"
	"pktracker/internal/period"
	"pktracker/internal/repository"
)

// ReminderService pushes scheduled reminders and the daily leaderboard to groups.
type ReminderService struct {
	tasks    *repository.TaskRepository
	ledger   *repository.CheckinRepository
	ranking  *RankingService
	notifier Notifier
	names    NicknameResolver
	loc      *time.Location
	log      zerolog.Logger
}

func NewReminderService(tasks *repository.TaskRepository, ledger *repository.CheckinRepository, ranking *RankingService, notifier Notifier, names NicknameResolver, loc *time.Location, log zerolog.Logger) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	if names == nil {
		names = echoResolver{}
	}
	return &ReminderService{
		tasks:    tasks,
		ledger:   ledger,
		ranking:  ranking,
		notifier: notifier,
		names:    names,
		loc:      loc,
		log:      log.With().Str("component", "reminder").Logger(),
	}
}

// ScanReminders sends the reminder of every enabled task whose reminder time
// equals now's HH:MM. It returns the number of reminders delivered.
func (s *ReminderService) ScanReminders(ctx context.Context, now time.Time) (int, error) {
	now = now.In(s.loc)
	clock := now.Format("15:04")

	tasks, err := s.tasks.ListDueReminders(ctx, clock)
	if err != nil {
		return 0, storeErr("due reminders", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	today, err := period.Resolve(model.FrequencyDay, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, task := range tasks {
		checked, err := s.ledger.CountUsersInWindow(ctx, task.ID, today)
		if err != nil {
			s.log.Error().Err(err).Str("group", task.GroupID).Str("task", task.Name).Msg("count today's users")
			continue
		}
		if s.send(ctx, task.GroupID, FormatReminder(task, checked)) {
			sent++
		}
	}
	s.log.Debug().Str("clock", clock).Int("due", len(tasks)).Int("sent", sent).Msg("reminder scan done")
	return sent, nil
}

// BroadcastLeaderboards sends each group one message holding the leaderboard
// of each of its enabled tasks. It returns the number of groups reached.
func (s *ReminderService) BroadcastLeaderboards(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.tasks.ListEnabled(ctx)
	if err != nil {
		return 0, storeErr("enabled tasks", err)
	}

	var groups []string
	byGroup := make(map[string][]model.Task)
	for _, t := range tasks {
		if _, ok := byGroup[t.GroupID]; !ok {
			groups = append(groups, t.GroupID)
		}
		byGroup[t.GroupID] = append(byGroup[t.GroupID], t)
	}

	sent := 0
	for _, groupID := range groups {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		text := s.groupLeaderboard(ctx, groupID, byGroup[groupID], now.In(s.loc))
		if text == "" {
			continue
		}
		if s.send(ctx, groupID, text) {
			sent++
		}
	}
	return sent, nil
}

func (s *ReminderService) groupLeaderboard(ctx context.Context, groupID string, tasks []model.Task, now time.Time) string {
	var boards []*Leaderboard
	var users []string
	seen := make(map[string]bool)
	for _, t := range tasks {
		board, err := s.ranking.Leaderboard(ctx, groupID, t.Name)
		if err != nil {
			s.log.Error().Err(err).Str("group", groupID).Str("task", t.Name).Msg("build leaderboard")
			continue
		}
		if len(board.Entries) == 0 {
			continue
		}
		boards = append(boards, board)
		for _, e := range board.Entries {
			if !seen[e.UserID] {
				seen[e.UserID] = true
				users = append(users, e.UserID)
			}
		}
	}
	if len(boards) == 0 {
		return ""
	}

	names := s.names.Resolve(ctx, groupID, users)
	parts := make([]string, 0, len(boards)+1)
	parts = append(parts, fmt.Sprintf("📅 每日排行榜 %s", now.Format("2006-01-02")))
	for _, b := range boards {
		parts = append(parts, FormatLeaderboard(b, names))
	}
	return strings.Join(parts, "\n\n")
}

func (s *ReminderService) send(ctx context.Context, groupID, text string) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Send(ctx, groupID, text); err != nil {
		s.log.Warn().Err(fmt.Errorf("%w: %w", ErrNotificationFailed, err)).Str("group", groupID).Msg("message not delivered")
		return false
	}
	return true
}
