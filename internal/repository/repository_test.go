package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"pktracker/internal/model"
	"pktracker/internal/period"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(Options{Driver: "sqlite", DSN: ":memory:", Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

func seedTask(t *testing.T, db *gorm.DB, group, name string) *model.Task {
	t.Helper()
	task := &model.Task{GroupID: group, Name: name, Frequency: model.FrequencyDay, MaxCheckins: 1, BaseScore: 1, Enabled: true}
	if err := NewTaskRepository(db).Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{":memory:", "file::memory:?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1"},
		{"data/pk.db", "data/pk.db?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1"},
		{"pk.db?_txlock=deferred", "pk.db?_txlock=deferred&_busy_timeout=5000&_foreign_keys=1"},
		{"pk.db?_txlock=exclusive&_busy_timeout=1&_foreign_keys=0", "pk.db?_txlock=exclusive&_busy_timeout=1&_foreign_keys=0"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskUniquePerGroup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	seedTask(t, db, "g1", "早起")

	dup := &model.Task{GroupID: "g1", Name: "早起", Frequency: model.FrequencyDay, Enabled: true}
	if err := repo.Create(ctx, dup); err == nil {
		t.Fatal("expected unique violation for duplicate (group, name)")
	}
	other := &model.Task{GroupID: "g2", Name: "早起", Frequency: model.FrequencyDay, Enabled: true}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("same name in another group should be allowed: %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	task := seedTask(t, db, "g1", "跑步")
	ledger := NewCheckinRepository(db)

	event := &model.CheckinEvent{TaskID: task.ID, UserID: "u1", CheckedInAt: time.Now()}
	if err := ledger.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if err := ledger.CreateBonus(ctx, &model.BonusEntry{TaskID: task.ID, UserID: "u1", CheckinEventID: event.ID, Category: model.BonusBase, Points: 1}); err != nil {
		t.Fatalf("CreateBonus: %v", err)
	}

	if err := NewTaskRepository(db).Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var events, bonuses int64
	db.Model(&model.CheckinEvent{}).Count(&events)
	db.Model(&model.BonusEntry{}).Count(&bonuses)
	if events != 0 || bonuses != 0 {
		t.Fatalf("orphans left behind: %d events, %d bonuses", events, bonuses)
	}
}

func TestCreateSettlementIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	task := seedTask(t, db, "g1", "读书")
	ledger := NewCheckinRepository(db)

	event := &model.CheckinEvent{TaskID: task.ID, UserID: "u1", CheckedInAt: time.Now()}
	if err := ledger.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	start := time.Date(2024, 5, 13, 0, 0, 0, 0, time.FixedZone("CST", 8*3600))
	for i, want := range []bool{true, false} {
		ps := start
		created, err := ledger.CreateSettlement(ctx, &model.BonusEntry{
			TaskID: task.ID, UserID: "u1", CheckinEventID: event.ID,
			Category: model.BonusWeekChampion, Points: 3, PeriodStart: &ps,
		})
		if err != nil {
			t.Fatalf("CreateSettlement #%d: %v", i, err)
		}
		if created != want {
			t.Fatalf("CreateSettlement #%d created = %v, want %v", i, created, want)
		}
	}

	exists, err := ledger.SettlementExists(ctx, task.ID, model.BonusWeekChampion, start)
	if err != nil || !exists {
		t.Fatalf("SettlementExists = %v, %v", exists, err)
	}
	other, err := ledger.SettlementExists(ctx, task.ID, model.BonusMonthChampion, start)
	if err != nil || other {
		t.Fatalf("month settlement must not exist: %v, %v", other, err)
	}

	// Base entries carry no period start and never collide.
	for i := 0; i < 2; i++ {
		if err := ledger.CreateBonus(ctx, &model.BonusEntry{TaskID: task.ID, UserID: "u1", CheckinEventID: event.ID, Category: model.BonusBase, Points: 1}); err != nil {
			t.Fatalf("CreateBonus #%d: %v", i, err)
		}
	}
}

func TestWindowQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	task := seedTask(t, db, "g1", "喝水")
	ledger := NewCheckinRepository(db)
	loc := time.FixedZone("CST", 8*3600)

	day := time.Date(2024, 5, 15, 0, 0, 0, 0, loc)
	times := []struct {
		user string
		at   time.Time
	}{
		{"u1", day.Add(-time.Minute)}, // previous day
		{"u1", day},                   // start is inclusive
		{"u2", day.Add(12 * time.Hour)},
		{"u1", day.Add(23 * time.Hour)},
		{"u2", day.Add(24 * time.Hour)}, // end is exclusive
	}
	for _, tt := range times {
		if err := ledger.CreateEvent(ctx, &model.CheckinEvent{TaskID: task.ID, UserID: tt.user, CheckedInAt: tt.at}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	w, err := period.Resolve(model.FrequencyDay, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n, _ := ledger.CountTaskInWindow(ctx, task.ID, w); n != 3 {
		t.Fatalf("CountTaskInWindow = %d, want 3", n)
	}
	if n, _ := ledger.CountUserInWindow(ctx, task.ID, "u1", w); n != 2 {
		t.Fatalf("CountUserInWindow = %d, want 2", n)
	}
	if n, _ := ledger.CountUsersInWindow(ctx, task.ID, w); n != 2 {
		t.Fatalf("CountUsersInWindow = %d, want 2", n)
	}

	events, err := ledger.EventsInWindow(ctx, task.ID, w)
	if err != nil {
		t.Fatalf("EventsInWindow: %v", err)
	}
	if len(events) != 3 || events[0].UserID != "u1" || !events[0].CheckedInAt.Equal(day) {
		t.Fatalf("unexpected window events: %+v", events)
	}

	got, err := ledger.UserTimesBefore(ctx, task.ID, "u1", day.AddDate(0, 0, -2), w.End)
	if err != nil {
		t.Fatalf("UserTimesBefore: %v", err)
	}
	if len(got) != 3 || !got[0].Equal(day.Add(23*time.Hour)) {
		t.Fatalf("UserTimesBefore = %v", got)
	}
}

func TestRankingAggregatesAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	task := seedTask(t, db, "g1", "冥想")
	disabled := seedTask(t, db, "g1", "停用")
	if err := NewTaskRepository(db).Update(ctx, disabled, map[string]interface{}{"enabled": false}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	ledger := NewCheckinRepository(db)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := &model.CheckinEvent{TaskID: task.ID, UserID: "u1", CheckedInAt: base.AddDate(0, 0, i), Content: "ok"}
		if err := ledger.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		for _, pts := range []int{1, i} {
			if pts == 0 {
				continue
			}
			if err := ledger.CreateBonus(ctx, &model.BonusEntry{TaskID: task.ID, UserID: "u1", CheckinEventID: e.ID, Category: model.BonusBase, Points: pts}); err != nil {
				t.Fatalf("CreateBonus: %v", err)
			}
		}
	}
	if err := ledger.CreateEvent(ctx, &model.CheckinEvent{TaskID: disabled.ID, UserID: "u1", CheckedInAt: base}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	late := &model.CheckinEvent{TaskID: task.ID, UserID: "u2", CheckedInAt: base.AddDate(0, 0, 3)}
	if err := ledger.CreateEvent(ctx, late); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if err := ledger.CreateBonus(ctx, &model.BonusEntry{TaskID: task.ID, UserID: "u2", CheckinEventID: late.ID, Category: model.BonusBase, Points: 6}); err != nil {
		t.Fatalf("CreateBonus: %v", err)
	}

	top, err := ledger.TopUsers(ctx, "g1", nil, 10)
	if err != nil {
		t.Fatalf("TopUsers: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("TopUsers = %+v, want 2 users", top)
	}
	// Equal points: the earlier last check-in ranks first.
	if top[0].UserID != "u1" || top[0].Points != 6 || top[0].Checkins != 3 {
		t.Fatalf("disabled task rows must be excluded, got %+v", top[0])
	}
	if !top[0].LastCheckin.Equal(base.AddDate(0, 0, 2)) {
		t.Fatalf("u1 last checkin = %v", top[0].LastCheckin)
	}
	if top[1].UserID != "u2" || top[1].Points != 6 {
		t.Fatalf("second place = %+v", top[1])
	}
	if one, err := ledger.TopUsers(ctx, "g1", &task.ID, 1); err != nil || len(one) != 1 {
		t.Fatalf("TopUsers limit = %+v, %v", one, err)
	}

	perTask, err := ledger.UserTaskTotals(ctx, "g1", nil, []string{"u1"})
	if err != nil {
		t.Fatalf("UserTaskTotals: %v", err)
	}
	if len(perTask) != 1 || perTask[0].TaskName != "冥想" || perTask[0].Checkins != 3 || perTask[0].Points != 6 {
		t.Fatalf("UserTaskTotals = %+v", perTask)
	}

	n, err := ledger.CountUserCheckins(ctx, "g1", "u1")
	if err != nil || n != 3 {
		t.Fatalf("CountUserCheckins = %d, %v", n, err)
	}
	page, err := ledger.UserCheckinPage(ctx, "g1", "u1", 2, 0)
	if err != nil {
		t.Fatalf("UserCheckinPage: %v", err)
	}
	if len(page) != 2 || !page[0].CheckedInAt.Equal(base.AddDate(0, 0, 2)) || page[0].Points != 3 {
		t.Fatalf("unexpected first page: %+v", page)
	}
}

func TestAdminMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewAdminRepository(db)

	if added, err := repo.Add(ctx, "g1", "u1"); err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	if added, err := repo.Add(ctx, "g1", "u1"); err != nil || added {
		t.Fatalf("duplicate Add = %v, %v", added, err)
	}
	if ok, _ := repo.Exists(ctx, "g1", "u1"); !ok {
		t.Fatal("expected admin to exist")
	}
	if ok, _ := repo.Exists(ctx, "g2", "u1"); ok {
		t.Fatal("membership must be per group")
	}
	if removed, err := repo.Remove(ctx, "g1", "u1"); err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if removed, _ := repo.Remove(ctx, "g1", "u1"); removed {
		t.Fatal("second Remove should report nothing removed")
	}
}

func TestMemberUpsertAndNames(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)

	if err := members.Upsert(ctx, &model.Member{GroupID: "g1", UserID: "u1", DisplayName: "旧名"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := members.Upsert(ctx, &model.Member{GroupID: "g1", UserID: "u1", DisplayName: "新名", Username: "u_one"}); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if err := members.Upsert(ctx, &model.Member{GroupID: "g1", UserID: "u2", Username: "u_two"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	names, err := members.Names(ctx, "g1", []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 2 || names["u1"] != "新名" || names["u2"] != "u_two" {
		t.Fatalf("names = %v", names)
	}

	var n int64
	if err := db.Model(&model.Member{}).Count(&n).Error; err != nil || n != 2 {
		t.Fatalf("member rows = %d, %v", n, err)
	}
}

func TestDBTimeScan(t *testing.T) {
	t.Parallel()
	want := time.Date(2024, 5, 3, 8, 0, 0, 500000000, time.UTC)
	for _, src := range []interface{}{
		want,
		"2024-05-03 08:00:00.5+00:00",
		[]byte("2024-05-03T08:00:00.5Z"),
	} {
		var got dbTime
		if err := got.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if !got.Equal(want) {
			t.Fatalf("Scan(%v) = %v, want %v", src, got.Time, want)
		}
	}
	var bad dbTime
	if err := bad.Scan("yesterday"); err == nil {
		t.Fatal("unparseable timestamp accepted")
	}
}
