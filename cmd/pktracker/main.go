package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pktracker/internal/bot"
	"pktracker/internal/config"
	"pktracker/internal/httpapi"
	"pktracker/internal/logging"
	"pktracker/internal/notify"
	"pktracker/internal/repository"
	"pktracker/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	db, err := repository.NewDB(repository.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	checkinRepo := repository.NewCheckinRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	memberRepo := repository.NewMemberRepository(db)

	var (
		api      *tgbotapi.BotAPI
		notifier service.Notifier = notify.LogNotifier{Log: log}
		resolver service.NicknameResolver
	)
	if !cfg.DryRun {
		api, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			log.Fatal().Err(err).Msg("create bot api")
		}
		log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
		notifier = notify.NewTelegramNotifier(api, cfg.NotifyRatePerSec, log)
		resolver = notify.NewTelegramResolver(api, log)
	}

	members := service.NewMemberDirectory(memberRepo, resolver, log)
	taskSvc := service.NewTaskService(taskRepo, cfg.Location)
	checkinSvc := service.NewCheckinService(taskRepo, checkinRepo, cfg.Location, log)
	rankingSvc := service.NewRankingService(taskRepo, checkinRepo, cfg.Location)
	adminSvc := service.NewAdminService(adminRepo, cfg.SuperAdmins)
	settlementSvc := service.NewSettlementService(taskRepo, checkinRepo, notifier, members, cfg.Location, log)
	reminderSvc := service.NewReminderService(taskRepo, checkinRepo, rankingSvc, notifier, members, cfg.Location, log)

	scheduler := service.NewSchedulerService(cfg.Location, log)
	if err := scheduler.RegisterTrackerJobs(service.TrackerJobs{
		Reminders:        reminderSvc,
		Settlement:       settlementSvc,
		Location:         cfg.Location,
		DailyRankingTime: cfg.DailyRankingTime,
	}); err != nil {
		log.Fatal().Err(err).Msg("schedule jobs")
	}
	scheduler.Start()
	defer scheduler.Stop(30 * time.Second)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(rankingSvc, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server")
				stop()
			}
		}()
	}

	notifySystemd(log, daemon.SdNotifyReady)
	log.Info().Str("timezone", cfg.Location.String()).Bool("dry_run", cfg.DryRun).Msg("pktracker started")

	if api != nil {
		telegramBot := bot.New(api, bot.Services{
			Tasks:    taskSvc,
			Checkins: checkinSvc,
			Ranking:  rankingSvc,
			Admins:   adminSvc,
			Members:  members,
			Names:    members,
		}, log)
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("bot stopped with error")
		}
	} else {
		<-ctx.Done()
	}

	notifySystemd(log, daemon.SdNotifyStopping)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	log.Info().Msg("shutdown complete")
}

func notifySystemd(log zerolog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug().Err(err).Str("state", state).Msg("sd_notify")
	}
}
