package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"pktracker/internal/model"
	"pktracker/internal/period"
	"pktracker/internal/repository"
)

// SettlementResult reports the outcome of settling one task for one window.
type SettlementResult struct {
	TaskID   uint
	TaskName string
	GroupID  string
	Category model.BonusCategory
	Window   period.Window
	WinnerID string
	Checkins int
	Points   int
	// Created is false when the window was already settled or had no check-ins.
	Created bool
	Err     error
}

// SettlementService awards weekly and monthly champion bonuses. Each
// (task, category, window) is settled at most once, however often it runs.
type SettlementService struct {
	tasks    *repository.TaskRepository
	ledger   *repository.CheckinRepository
	notifier Notifier
	names    NicknameResolver
	loc      *time.Location
	log      zerolog.Logger
}

func NewSettlementService(tasks *repository.TaskRepository, ledger *repository.CheckinRepository, notifier Notifier, names NicknameResolver, loc *time.Location, log zerolog.Logger) *SettlementService {
	if loc == nil {
		loc = time.Local
	}
	if names == nil {
		names = echoResolver{}
	}
	return &SettlementService{
		tasks:    tasks,
		ledger:   ledger,
		notifier: notifier,
		names:    names,
		loc:      loc,
		log:      log.With().Str("component", "settlement").Logger(),
	}
}

// SettleWeekly settles the week that ended before now.
func (s *SettlementService) SettleWeekly(ctx context.Context, now time.Time) ([]SettlementResult, error) {
	return s.Settle(ctx, model.BonusWeekChampion, now)
}

// SettleMonthly settles the month that ended before now.
func (s *SettlementService) SettleMonthly(ctx context.Context, now time.Time) ([]SettlementResult, error) {
	return s.Settle(ctx, model.BonusMonthChampion, now)
}

// Settle awards category for the completed window preceding now on every
// enabled task with the matching rule switched on. A failure on one task is
// recorded in its result and does not stop the others.
func (s *SettlementService) Settle(ctx context.Context, category model.BonusCategory, now time.Time) ([]SettlementResult, error) {
	freq, ok := category.Settlement()
	if !ok {
		return nil, invalidParam("category %q is not settled periodically", category)
	}
	window, err := period.Previous(freq, now.In(s.loc))
	if err != nil {
		return nil, invalidParam("settlement window: %v", err)
	}

	tasks, err := s.tasks.ListWithRule(ctx, category)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}

	results := make([]SettlementResult, 0, len(tasks))
	for _, task := range tasks {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res := s.settleTask(ctx, task, category, window)
		if res.Err != nil {
			s.log.Error().Err(res.Err).
				Str("group", task.GroupID).
				Str("task", task.Name).
				Str("category", string(category)).
				Msg("settlement failed")
		} else if res.Created {
			s.announce(ctx, res)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *SettlementService) settleTask(ctx context.Context, task model.Task, category model.BonusCategory, window period.Window) SettlementResult {
	res := SettlementResult{
		TaskID:   task.ID,
		TaskName: task.Name,
		GroupID:  task.GroupID,
		Category: category,
		Window:   window,
	}

	res.Err = s.ledger.InTx(ctx, func(tx *repository.CheckinRepository) error {
		locked, err := tx.LockTask(ctx, task.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return storeErr("lock task", err)
		}
		rule := locked.Rule(category)
		if !locked.Enabled || rule == nil || !rule.Enabled || rule.Reward <= 0 {
			return nil
		}

		done, err := tx.SettlementExists(ctx, locked.ID, category, window.Start)
		if err != nil {
			return storeErr("settlement lookup", err)
		}
		if done {
			return nil
		}

		events, err := tx.EventsInWindow(ctx, locked.ID, window)
		if err != nil {
			return storeErr("window checkins", err)
		}
		winner, ok := pickChampion(events)
		if !ok {
			return nil
		}

		start := window.Start
		entry := model.BonusEntry{
			TaskID:         locked.ID,
			UserID:         winner.UserID,
			CheckinEventID: winner.EventID,
			Category:       category,
			Points:         rule.Reward,
			PeriodStart:    &start,
		}
		created, err := tx.CreateSettlement(ctx, &entry)
		if err != nil {
			return storeErr("record settlement", err)
		}
		res.WinnerID = winner.UserID
		res.Checkins = winner.Checkins
		res.Points = rule.Reward
		res.Created = created
		return nil
	})
	if res.Err != nil {
		res.Created = false
	}
	return res
}

func (s *SettlementService) announce(ctx context.Context, res SettlementResult) {
	s.log.Info().
		Str("group", res.GroupID).
		Str("task", res.TaskName).
		Str("category", string(res.Category)).
		Str("winner", res.WinnerID).
		Int("checkins", res.Checkins).
		Str("window", res.Window.String()).
		Msg("champion settled")

	if s.notifier == nil {
		return
	}
	names := s.names.Resolve(ctx, res.GroupID, []string{res.WinnerID})
	text := FormatSettlement(res, displayName(names, res.WinnerID))
	if err := s.notifier.Send(ctx, res.GroupID, text); err != nil {
		s.log.Warn().Err(fmt.Errorf("%w: %w", ErrNotificationFailed, err)).
			Str("group", res.GroupID).
			Str("task", res.TaskName).
			Msg("settlement announcement not delivered")
	}
}

type champion struct {
	UserID   string
	Checkins int
	EventID  uint
	first    time.Time
}

// pickChampion selects the user with the most check-ins among events, which
// must be ordered oldest first. Ties go to whoever checked in first in the
// window. The returned EventID is the winner's earliest event.
func pickChampion(events []model.CheckinEvent) (champion, bool) {
	byUser := make(map[string]*champion)
	var order []string
	for _, e := range events {
		c, ok := byUser[e.UserID]
		if !ok {
			c = &champion{UserID: e.UserID, EventID: e.ID, first: e.CheckedInAt}
			byUser[e.UserID] = c
			order = append(order, e.UserID)
		}
		c.Checkins++
	}

	var best *champion
	for _, id := range order {
		c := byUser[id]
		if best == nil || c.Checkins > best.Checkins ||
			(c.Checkins == best.Checkins && c.first.Before(best.first)) {
			best = c
		}
	}
	if best == nil {
		return champion{}, false
	}
	return *best, true
}
