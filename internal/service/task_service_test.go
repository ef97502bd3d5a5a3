package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pktracker/internal/model"
)

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.createTask(t, "g1", " 早起 ")
	if task.Name != "早起" || task.Frequency != model.FrequencyDay || task.MaxCheckins != 1 || task.BaseScore != 1 || !task.Enabled {
		t.Fatalf("task = %+v", task)
	}
	for _, c := range []model.BonusCategory{model.BonusFirst, model.BonusConsecutive, model.BonusWeekChampion, model.BonusMonthChampion} {
		rule := task.Rule(c)
		if rule.Enabled || rule.Reward != defaultRewards[c] {
			t.Fatalf("rule %s = %+v", c, rule)
		}
	}

	if _, err := env.taskSvc.CreateTask(ctx, "g1", "早起"); !errors.Is(err, ErrTaskExists) {
		t.Fatalf("duplicate err = %v, want ErrTaskExists", err)
	}
	if _, err := env.taskSvc.CreateTask(ctx, "g2", "早起"); err != nil {
		t.Fatalf("same name in another group: %v", err)
	}
	if _, err := env.taskSvc.CreateTask(ctx, "g1", "早 起"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("spaced name err = %v, want ErrInvalidParameter", err)
	}
}

func TestTaskSetters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createTask(t, "g1", "跑步")

	if _, err := env.taskSvc.SetFrequency(ctx, "g1", "跑步", "year"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("bad frequency err = %v", err)
	}
	if _, err := env.taskSvc.SetMaxCheckins(ctx, "g1", "跑步", -1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("negative max err = %v", err)
	}
	if _, err := env.taskSvc.SetBaseScore(ctx, "g1", "缺失", 2); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("missing task err = %v", err)
	}

	task, err := env.taskSvc.SetMaxCheckins(ctx, "g1", "跑步", 0)
	if err != nil || task.MaxCheckins != 0 {
		t.Fatalf("SetMaxCheckins(0) = %+v, %v", task, err)
	}

	task, err = env.taskSvc.SetReward(ctx, "g1", "跑步", model.BonusMonthChampion, true, nil)
	if err != nil || !task.MonthlyChampion.Enabled || task.MonthlyChampion.Reward != 5 {
		t.Fatalf("SetReward preset = %+v, %v", task.MonthlyChampion, err)
	}
	points := 8
	task, err = env.taskSvc.SetReward(ctx, "g1", "跑步", model.BonusFirst, true, &points)
	if err != nil || task.FirstCheckin.Reward != 8 {
		t.Fatalf("SetReward points = %+v, %v", task.FirstCheckin, err)
	}
	task, err = env.taskSvc.SetReward(ctx, "g1", "跑步", model.BonusFirst, false, nil)
	if err != nil || task.FirstCheckin.Enabled || task.FirstCheckin.Reward != 8 {
		t.Fatalf("SetReward off = %+v, %v", task.FirstCheckin, err)
	}
	if _, err := env.taskSvc.SetReward(ctx, "g1", "跑步", model.BonusBase, true, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("base as reward rule err = %v", err)
	}

	task, err = env.taskSvc.SetReminder(ctx, "g1", "跑步", "6:05", " 出门 ")
	if err != nil || task.ReminderTime != "06:05" || task.ReminderText != "出门" {
		t.Fatalf("SetReminder = %q %q, %v", task.ReminderTime, task.ReminderText, err)
	}
	if _, err := env.taskSvc.SetReminder(ctx, "g1", "跑步", "6点", ""); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("bad clock err = %v", err)
	}
	task, err = env.taskSvc.ClearReminder(ctx, "g1", "跑步")
	if err != nil || task.ReminderTime != "" {
		t.Fatalf("ClearReminder = %q, %v", task.ReminderTime, err)
	}

	task, err = env.taskSvc.SetEnabled(ctx, "g1", "跑步", false)
	if err != nil || task.Enabled {
		t.Fatalf("SetEnabled(false) = %v, %v", task.Enabled, err)
	}
	// disabled tasks stay manageable
	if _, err := env.taskSvc.SetBaseScore(ctx, "g1", "跑步", 3); err != nil {
		t.Fatalf("SetBaseScore on disabled task: %v", err)
	}
}

func TestTaskDetailAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createTask(t, "g1", "读书")
	env.taskSvc.now = func() time.Time { return at(2024, time.June, 4, 12, 0) }

	env.checkin(t, "g1", "A", "读书", at(2024, time.June, 3, 21, 0))
	env.checkin(t, "g1", "A", "读书", at(2024, time.June, 4, 8, 0))
	env.checkin(t, "g1", "B", "读书", at(2024, time.June, 4, 9, 0))

	detail, err := env.taskSvc.TaskDetail(ctx, "g1", "读书")
	if err != nil {
		t.Fatalf("TaskDetail: %v", err)
	}
	st := detail.Stats
	if st.Participants != 2 || st.Checkins != 3 || st.TodayUsers != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.LastCheckin == nil || !st.LastCheckin.Equal(at(2024, time.June, 4, 9, 0)) {
		t.Fatalf("last check-in = %v", st.LastCheckin)
	}
	if text := FormatTaskDetail(detail); !containsAll(text, "读书", "参与总人数: 2人", "2024-06-04 09:00:00") {
		t.Fatalf("detail text = %q", text)
	}

	if err := env.taskSvc.DeleteTask(ctx, "g1", "读书"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := env.taskSvc.TaskDetail(ctx, "g1", "读书"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("deleted task err = %v", err)
	}
	if n, _ := env.ledger.CountUserCheckins(ctx, "g1", "A"); n != 0 {
		t.Fatalf("check-ins survived deletion: %d", n)
	}
	if err := env.taskSvc.DeleteTask(ctx, "g1", "读书"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestListTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createTask(t, "g1", "早起")
	env.createTask(t, "g1", "读书")
	env.createTask(t, "g2", "跑步")
	if _, err := env.taskSvc.SetEnabled(ctx, "g1", "读书", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	tasks, err := env.taskSvc.ListTasks(ctx, "g1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Name != "早起" || tasks[1].Name != "读书" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if text := FormatTaskList(tasks); !containsAll(text, "✅ [早起]", "❌ [读书]", "每日最多打卡1次") {
		t.Fatalf("list text = %q", text)
	}
}
