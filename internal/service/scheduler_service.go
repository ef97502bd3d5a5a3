package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pktracker/internal/config"
	"pktracker/internal/logging"
	"pktracker/internal/period"
)

const (
	JobReminderScan      = "reminder-scan"
	JobDailyLeaderboard  = "daily-leaderboard"
	JobWeeklySettlement  = "weekly-settlement"
	JobMonthlySettlement = "monthly-settlement"

	reminderScanSpec      = "0 * * * * *"
	weeklySettlementSpec  = "0 0 23 * * SUN"
	monthlySettlementSpec = "0 0 23 28-31 * *"
)

// JobFunc is the body of a scheduled job. Stopping the scheduler does not
// cancel ctx; a run in progress is left to finish.
type JobFunc func(ctx context.Context)

type scheduledJob struct {
	id      cron.EntryID
	spec    string
	wrapped cron.Job
}

// SchedulerService runs named recurring jobs on a cron. Registering a name
// again replaces the previous entry. A job never overlaps with itself.
type SchedulerService struct {
	cron  *cron.Cron
	chain cron.Chain
	log   zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	started bool
	stopped bool
	running sync.WaitGroup
}

func NewSchedulerService(loc *time.Location, log zerolog.Logger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := logging.CronLogger{Log: log}
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithLogger(cronLog)),
		// Recover sits inside the skip guard so a panicking run still frees it.
		chain: cron.NewChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)),
		log:   log,
		jobs:  make(map[string]*scheduledJob),
	}
}

// Register schedules job under name with a six-field cron spec
// (second minute hour day-of-month month day-of-week).
func (s *SchedulerService) Register(name, spec string, job JobFunc) error {
	if name == "" || job == nil {
		return invalidParam("job name and body are required")
	}
	wrapped := s.chain.Then(cron.FuncJob(func() { s.run(name, job) }))

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return invalidParam("job %s: spec %q: %v", name, spec, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
	}
	s.jobs[name] = &scheduledJob{id: id, spec: spec, wrapped: wrapped}
	s.log.Debug().Str("job", name).Str("spec", spec).Msg("job registered")
	return nil
}

// ScheduleDaily registers a job that runs every day at the given HH:MM.
func (s *SchedulerService) ScheduleDaily(name, clock string, job JobFunc) error {
	spec, err := buildDailySpec(clock)
	if err != nil {
		return invalidParam("job %s: %v", name, err)
	}
	return s.Register(name, spec, job)
}

// Unregister removes a job; it reports whether the name was known.
func (s *SchedulerService) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.jobs[name]
	if ok {
		s.cron.Remove(old.id)
		delete(s.jobs, name)
	}
	return ok
}

// Jobs lists registered job names with their specs.
func (s *SchedulerService) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.spec
	}
	return out
}

// Next returns the next activation time of a job.
func (s *SchedulerService) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(j.id).Next, true
}

// Trigger runs a registered job now, outside its schedule. It is skipped if
// the job is already running.
func (s *SchedulerService) Trigger(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if ok {
		go j.wrapped.Run()
	}
	return ok
}

// Start begins dispatching jobs. Calling it again is a no-op.
func (s *SchedulerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	s.log.Info().Strs("jobs", names).Msg("scheduler started")
}

// Stop prevents new runs and waits up to timeout for running jobs, including
// triggered ones, to return.
func (s *SchedulerService) Stop(timeout time.Duration) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		<-cronDone
		s.running.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
	case <-timer.C:
		s.log.Warn().Dur("timeout", timeout).Msg("scheduler stop timed out; jobs still running")
	}
}

func (s *SchedulerService) run(name string, job JobFunc) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	log := s.log.With().Str("job", name).Str("run", uuid.NewString()).Logger()
	started := time.Now()
	log.Debug().Msg("job started")
	job(log.WithContext(context.Background()))
	log.Debug().Dur("took", time.Since(started)).Msg("job finished")
}

func buildDailySpec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// TrackerJobs holds the services driven by the recurring jobs.
type TrackerJobs struct {
	Reminders        *ReminderService
	Settlement       *SettlementService
	Location         *time.Location
	DailyRankingTime string // HH:MM, empty disables the daily leaderboard
}

// RegisterTrackerJobs installs the reminder scan, the daily leaderboard and
// the weekly and monthly settlements.
func (s *SchedulerService) RegisterTrackerJobs(jobs TrackerJobs) error {
	loc := jobs.Location
	if loc == nil {
		loc = time.Local
	}
	now := func() time.Time { return time.Now().In(loc) }

	if err := s.Register(JobReminderScan, reminderScanSpec, func(ctx context.Context) {
		if _, err := jobs.Reminders.ScanReminders(ctx, now()); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("reminder scan")
		}
	}); err != nil {
		return err
	}

	if jobs.DailyRankingTime != "" {
		if err := s.ScheduleDaily(JobDailyLeaderboard, jobs.DailyRankingTime, func(ctx context.Context) {
			n, err := jobs.Reminders.BroadcastLeaderboards(ctx, now())
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("daily leaderboard")
				return
			}
			zerolog.Ctx(ctx).Info().Int("groups", n).Msg("daily leaderboard sent")
		}); err != nil {
			return err
		}
	}

	if err := s.Register(JobWeeklySettlement, weeklySettlementSpec, func(ctx context.Context) {
		logSettlement(ctx, jobs.Settlement.SettleWeekly)(now())
	}); err != nil {
		return err
	}

	return s.Register(JobMonthlySettlement, monthlySettlementSpec, func(ctx context.Context) {
		runMonthlySettlement(ctx, jobs.Settlement.SettleMonthly, now())
	})
}

// runMonthlySettlement settles only on the last day of the month; the cron
// entry fires on every day from the 28th on. It reports whether it settled.
func runMonthlySettlement(ctx context.Context, settle func(context.Context, time.Time) ([]SettlementResult, error), now time.Time) bool {
	if !period.IsLastDayOfMonth(now) {
		zerolog.Ctx(ctx).Debug().Time("now", now).Msg("not the last day of the month")
		return false
	}
	logSettlement(ctx, settle)(now)
	return true
}

func logSettlement(ctx context.Context, settle func(context.Context, time.Time) ([]SettlementResult, error)) func(time.Time) {
	return func(now time.Time) {
		log := zerolog.Ctx(ctx)
		results, err := settle(ctx, now)
		if err != nil {
			log.Error().Err(err).Msg("settlement aborted")
			return
		}
		awarded, failed := 0, 0
		for _, r := range results {
			switch {
			case r.Err != nil:
				failed++
			case r.Created:
				awarded++
			}
		}
		log.Info().Int("tasks", len(results)).Int("awarded", awarded).Int("failed", failed).Msg("settlement done")
	}
}
