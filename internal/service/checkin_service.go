package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"pktracker/internal/model"
	"pktracker/internal/period"
	"pktracker/internal/repository"
)

// CheckinRequest is one user's attempt to check in on a task.
type CheckinRequest struct {
	GroupID  string
	UserID   string
	TaskName string
	Content  string
	At       time.Time // zero means now
}

// CheckinResult describes a recorded check-in.
type CheckinResult struct {
	Task      model.Task
	Event     model.CheckinEvent
	Breakdown Breakdown
}

// CheckinService records check-ins and their bonuses atomically.
type CheckinService struct {
	tasks  *repository.TaskRepository
	ledger *repository.CheckinRepository
	loc    *time.Location
	log    zerolog.Logger
	now    func() time.Time
}

func NewCheckinService(tasks *repository.TaskRepository, ledger *repository.CheckinRepository, loc *time.Location, log zerolog.Logger) *CheckinService {
	if loc == nil {
		loc = time.Local
	}
	return &CheckinService{
		tasks:  tasks,
		ledger: ledger,
		loc:    loc,
		log:    log.With().Str("component", "checkin").Logger(),
		now:    time.Now,
	}
}

// Record admits a check-in if the user's quota for the current period allows
// it, then awards base, first-of-day and consecutive bonuses. The quota count,
// the insert and the bonus entries commit as one transaction.
func (s *CheckinService) Record(ctx context.Context, req CheckinRequest) (*CheckinResult, error) {
	req.TaskName = strings.TrimSpace(req.TaskName)
	if req.GroupID == "" || req.UserID == "" || req.TaskName == "" {
		return nil, invalidParam("group, user and task name are required")
	}
	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.In(s.loc)

	task, err := findTask(ctx, s.tasks, req.GroupID, req.TaskName)
	if err != nil {
		return nil, err
	}

	var result *CheckinResult
	err = s.ledger.InTx(ctx, func(tx *repository.CheckinRepository) error {
		locked, err := tx.LockTask(ctx, task.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return storeErr("lock task", err)
		}
		if !locked.Enabled {
			return ErrTaskDisabled
		}

		window, err := period.Resolve(locked.Frequency, at)
		if err != nil {
			return invalidParam("task frequency: %v", err)
		}
		if locked.MaxCheckins > 0 {
			n, err := tx.CountUserInWindow(ctx, locked.ID, req.UserID, window)
			if err != nil {
				return storeErr("quota", err)
			}
			if n >= int64(locked.MaxCheckins) {
				return &QuotaExceededError{Frequency: locked.Frequency, Max: locked.MaxCheckins}
			}
		}

		event := model.CheckinEvent{TaskID: locked.ID, UserID: req.UserID, CheckedInAt: at, Content: req.Content}
		if err := tx.CreateEvent(ctx, &event); err != nil {
			return storeErr("insert checkin", err)
		}

		facts, err := s.bonusFacts(ctx, tx, locked, req.UserID, at)
		if err != nil {
			return err
		}
		breakdown := ComputeBonus(locked, at, facts)
		for _, category := range breakdown.Categories() {
			entry := model.BonusEntry{
				TaskID:         locked.ID,
				UserID:         req.UserID,
				CheckinEventID: event.ID,
				Category:       category,
				Points:         breakdown[category],
			}
			if err := tx.CreateBonus(ctx, &entry); err != nil {
				return storeErr("insert bonus", err)
			}
		}

		event.CheckedInAt = event.CheckedInAt.In(s.loc)
		result = &CheckinResult{Task: *locked, Event: event, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("group", req.GroupID).
		Str("task", task.Name).
		Str("user", req.UserID).
		Int("points", result.Breakdown.Total()).
		Msg("checkin recorded")
	return result, nil
}

// bonusFacts reads the state the bonus rules depend on, including the event
// that was just inserted.
func (s *CheckinService) bonusFacts(ctx context.Context, tx *repository.CheckinRepository, task *model.Task, userID string, at time.Time) (BonusFacts, error) {
	var facts BonusFacts
	day, err := period.Resolve(model.FrequencyDay, at)
	if err != nil {
		return facts, err
	}
	if task.FirstCheckin.Enabled {
		if facts.TaskCheckinsToday, err = tx.CountTaskInWindow(ctx, task.ID, day); err != nil {
			return facts, storeErr("first checkin", err)
		}
	}
	if task.ConsecutiveCheckin.Enabled {
		from := day.Start.AddDate(0, 0, -(consecutiveDays - 1))
		if facts.RecentTimes, err = tx.UserTimesBefore(ctx, task.ID, userID, from, day.End); err != nil {
			return facts, storeErr("consecutive checkin", err)
		}
	}
	return facts, nil
}

// findTask resolves an enabled task by (group, name).
func findTask(ctx context.Context, tasks *repository.TaskRepository, groupID, name string) (*model.Task, error) {
	task, err := tasks.FindByName(ctx, groupID, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, storeErr("find task", err)
	}
	if !task.Enabled {
		return nil, ErrTaskDisabled
	}
	return task, nil
}
