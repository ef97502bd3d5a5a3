package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"pktracker/internal/config"
	"pktracker/internal/model"
	"pktracker/internal/period"
	"pktracker/internal/repository"
)

// Values a reward rule starts with; enabling a rule without points uses them.
var defaultRewards = map[model.BonusCategory]int{
	model.BonusFirst:         3,
	model.BonusConsecutive:   3,
	model.BonusWeekChampion:  3,
	model.BonusMonthChampion: 5,
}

// TaskDetail is a task with its activity figures.
type TaskDetail struct {
	Task  model.Task
	Stats repository.TaskStats
}

// TaskService manages a group's tasks and their settings.
type TaskService struct {
	tasks *repository.TaskRepository
	loc   *time.Location
	now   func() time.Time
}

func NewTaskService(tasks *repository.TaskRepository, loc *time.Location) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{tasks: tasks, loc: loc, now: time.Now}
}

// CreateTask adds an enabled daily task allowing one check-in per day worth one
// point, with every reward rule switched off.
func (s *TaskService) CreateTask(ctx context.Context, groupID, name string) (*model.Task, error) {
	name = strings.TrimSpace(name)
	if groupID == "" || name == "" {
		return nil, invalidParam("group and task name are required")
	}
	if strings.ContainsAny(name, " \t\n") {
		return nil, invalidParam("task name must not contain spaces")
	}

	_, err := s.tasks.FindByName(ctx, groupID, name)
	switch {
	case err == nil:
		return nil, ErrTaskExists
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, storeErr("find task", err)
	}

	task := model.Task{
		GroupID:            groupID,
		Name:               name,
		Frequency:          model.FrequencyDay,
		MaxCheckins:        1,
		BaseScore:          1,
		Enabled:            true,
		FirstCheckin:       model.RewardRule{Reward: defaultRewards[model.BonusFirst]},
		ConsecutiveCheckin: model.RewardRule{Reward: defaultRewards[model.BonusConsecutive]},
		WeeklyChampion:     model.RewardRule{Reward: defaultRewards[model.BonusWeekChampion]},
		MonthlyChampion:    model.RewardRule{Reward: defaultRewards[model.BonusMonthChampion]},
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, storeErr("create task", err)
	}
	return &task, nil
}

// ListTasks returns every task of a group, disabled ones included.
func (s *TaskService) ListTasks(ctx context.Context, groupID string) ([]model.Task, error) {
	tasks, err := s.tasks.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// TaskDetail returns a task (enabled or not) and its statistics.
func (s *TaskService) TaskDetail(ctx context.Context, groupID, name string) (*TaskDetail, error) {
	task, err := s.lookup(ctx, groupID, name)
	if err != nil {
		return nil, err
	}
	today, err := period.Resolve(model.FrequencyDay, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	stats, err := s.tasks.Stats(ctx, task.ID, today)
	if err != nil {
		return nil, storeErr("task stats", err)
	}
	if stats.LastCheckin != nil {
		last := stats.LastCheckin.In(s.loc)
		stats.LastCheckin = &last
	}
	return &TaskDetail{Task: *task, Stats: stats}, nil
}

func (s *TaskService) SetFrequency(ctx context.Context, groupID, name string, freq model.Frequency) (*model.Task, error) {
	if !freq.Valid() {
		return nil, invalidParam("frequency must be day, week or month")
	}
	return s.update(ctx, groupID, name, map[string]interface{}{"frequency": freq})
}

// SetMaxCheckins sets the per-user quota for each period; 0 means unlimited.
func (s *TaskService) SetMaxCheckins(ctx context.Context, groupID, name string, max int) (*model.Task, error) {
	if max < 0 {
		return nil, invalidParam("max check-ins must not be negative")
	}
	return s.update(ctx, groupID, name, map[string]interface{}{"max_checkins": max})
}

func (s *TaskService) SetBaseScore(ctx context.Context, groupID, name string, score int) (*model.Task, error) {
	if score < 0 {
		return nil, invalidParam("base score must not be negative")
	}
	return s.update(ctx, groupID, name, map[string]interface{}{"base_score": score})
}

func (s *TaskService) SetEnabled(ctx context.Context, groupID, name string, enabled bool) (*model.Task, error) {
	return s.update(ctx, groupID, name, map[string]interface{}{"enabled": enabled})
}

// SetReward toggles one reward rule. A nil points keeps the rule's current value.
func (s *TaskService) SetReward(ctx context.Context, groupID, name string, category model.BonusCategory, enabled bool, points *int) (*model.Task, error) {
	prefix, ok := rulePrefix[category]
	if !ok {
		return nil, invalidParam("unknown reward rule %q", category)
	}
	updates := map[string]interface{}{prefix + "enabled": enabled}
	if points != nil {
		if *points < 0 {
			return nil, invalidParam("reward points must not be negative")
		}
		updates[prefix+"reward"] = *points
	}
	return s.update(ctx, groupID, name, updates)
}

var rulePrefix = map[model.BonusCategory]string{
	model.BonusFirst:         "first_checkin_",
	model.BonusConsecutive:   "consecutive_checkin_",
	model.BonusWeekChampion:  "weekly_champion_",
	model.BonusMonthChampion: "monthly_champion_",
}

// SetReminder schedules a daily reminder at clock (HH:MM).
func (s *TaskService) SetReminder(ctx context.Context, groupID, name, clock, text string) (*model.Task, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return nil, invalidParam("%v", err)
	}
	normalized := time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")
	return s.update(ctx, groupID, name, map[string]interface{}{
		"reminder_time": normalized,
		"reminder_text": strings.TrimSpace(text),
	})
}

func (s *TaskService) ClearReminder(ctx context.Context, groupID, name string) (*model.Task, error) {
	return s.update(ctx, groupID, name, map[string]interface{}{"reminder_time": "", "reminder_text": ""})
}

// DeleteTask removes a task along with its check-ins and bonus entries.
func (s *TaskService) DeleteTask(ctx context.Context, groupID, name string) error {
	task, err := s.lookup(ctx, groupID, name)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return storeErr("delete task", err)
	}
	return nil
}

func (s *TaskService) update(ctx context.Context, groupID, name string, updates map[string]interface{}) (*model.Task, error) {
	task, err := s.lookup(ctx, groupID, name)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task, updates); err != nil {
		return nil, storeErr("update task", err)
	}
	updated, err := s.tasks.FindByID(ctx, task.ID)
	if err != nil {
		return nil, storeErr("reload task", err)
	}
	return updated, nil
}

// lookup finds a task regardless of its enabled flag.
func (s *TaskService) lookup(ctx context.Context, groupID, name string) (*model.Task, error) {
	name = strings.TrimSpace(name)
	if groupID == "" || name == "" {
		return nil, invalidParam("group and task name are required")
	}
	task, err := s.tasks.FindByName(ctx, groupID, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, storeErr("find task", err)
	}
	return task, nil
}
