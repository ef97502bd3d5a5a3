package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pktracker/internal/model"
	"pktracker/internal/repository"
)

var cst = time.FixedZone("CST", 8*3600)

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, cst)
}

type testEnv struct {
	tasks    *repository.TaskRepository
	ledger   *repository.CheckinRepository
	admins   *repository.AdminRepository
	members  *repository.MemberRepository
	notifier *recordingNotifier

	taskSvc    *TaskService
	checkins   *CheckinService
	ranking    *RankingService
	settlement *SettlementService
	reminders  *ReminderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(repository.Options{Driver: "sqlite", DSN: ":memory:", Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}

	env := &testEnv{
		tasks:    repository.NewTaskRepository(db),
		ledger:   repository.NewCheckinRepository(db),
		admins:   repository.NewAdminRepository(db),
		members:  repository.NewMemberRepository(db),
		notifier: &recordingNotifier{},
	}
	env.taskSvc = NewTaskService(env.tasks, cst)
	env.checkins = NewCheckinService(env.tasks, env.ledger, cst, zerolog.Nop())
	env.ranking = NewRankingService(env.tasks, env.ledger, cst)
	env.settlement = NewSettlementService(env.tasks, env.ledger, env.notifier, nil, cst, zerolog.Nop())
	env.reminders = NewReminderService(env.tasks, env.ledger, env.ranking, env.notifier, nil, cst, zerolog.Nop())
	return env
}

func (e *testEnv) createTask(t *testing.T, group, name string) *model.Task {
	t.Helper()
	task, err := e.taskSvc.CreateTask(context.Background(), group, name)
	if err != nil {
		t.Fatalf("CreateTask(%s, %s): %v", group, name, err)
	}
	return task
}

func (e *testEnv) checkin(t *testing.T, group, user, task string, when time.Time) *CheckinResult {
	t.Helper()
	res, err := e.checkins.Record(context.Background(), CheckinRequest{GroupID: group, UserID: user, TaskName: task, At: when})
	if err != nil {
		t.Fatalf("Record(%s, %s, %s): %v", group, user, task, err)
	}
	return res
}

type sentMessage struct {
	GroupID string
	Text    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, groupID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("chat unreachable")
	}
	n.sent = append(n.sent, sentMessage{GroupID: groupID, Text: text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
