package main

import (
	"context"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/handlers"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/internal/utils"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	db        *gorm.DB
	loc       *time.Location
	taskQueue services.TaskQueue
	worker    *services.Worker
	tracker   *services.JobTracker
	jobStore  *services.RedisJobStore
	scheduler *services.ReportScheduler
	logCron   *cron.Cron
	stopJobs  context.CancelFunc

	authHandler         *handlers.AuthHandler
	reportHandler       *handlers.ReportHandler
	systemConfigHandler *handlers.SystemConfigHandler
	healthHandler       *handlers.HealthHandler
	sseHandler          *handlers.SSEHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()
	if err := models.SeedDefaultData(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(db)
	loc := cfg.Report.Location()
	logCron := services.StartLogCleanupScheduler(db, loc)

	settings := services.NewSystemConfigService(db)
	holidays := services.NewHolidayService()
	emailService := services.NewEmailService(db, cfg.Mail)

	// the LLM config pinned in the weekly-report settings is tried first
	aiService := services.NewAIService(db, &cfg.OpenAI)
	analyzer := services.NewAIAnalysisClient(aiService, cfg.Report.SummaryModel, cfg.Report.StrategyModel, func() *uint {
		return settings.GetWeeklyReportSettings().LLMConfigID
	})
	reportService := services.NewWeeklyReportService(db, services.NewGormReportStore(db), analyzer, loc)
	reportService.SetFailureNotifier(emailService.NotifyAdminsOfFailure)

	// Job state lives in Redis when the queue does, so any instance can
	// answer a status poll.
	var jobStore services.JobStore
	var redisJobs *services.RedisJobStore
	if cfg.Redis.Enabled {
		store, err := services.NewRedisJobStore(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis job store unavailable, keeping jobs in memory")
		} else {
			jobStore = store
			redisJobs = store
		}
	}
	tracker := services.NewJobTracker(jobStore, time.Now)
	jobEvents := services.NewJobEventHub()
	tracker.SetListener(jobEvents.Publish)
	jobCtx, stopJobs := context.WithCancel(context.Background())
	tracker.StartSweeper(jobCtx)

	taskQueue := services.NewTaskQueue(&cfg.Redis)
	jobService := services.NewReportJobService(tracker, taskQueue, reportService, cfg.Report.Timeout())
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(jobService.Process)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(jobService.Process)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start report worker")
			}
		}
	}

	scheduler := services.NewReportScheduler(db, reportService, emailService, holidays, cfg.Report)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start weekly report scheduler")
	}

	authService := services.NewAuthService(db, &cfg.JWT, &cfg.LDAP)
	if err := authService.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:       cfg,
		db:        db,
		loc:       loc,
		taskQueue: taskQueue,
		worker:    worker,
		tracker:   tracker,
		jobStore:  redisJobs,
		scheduler: scheduler,
		logCron:   logCron,
		stopJobs:  stopJobs,

		authHandler:         handlers.NewAuthHandler(authService),
		reportHandler:       handlers.NewReportHandler(reportService, jobService, scheduler, emailService, cfg.Report.Timeout()),
		systemConfigHandler: handlers.NewSystemConfigHandler(settings, emailService, holidays),
		healthHandler:       handlers.NewHealthHandler(db, taskQueue, tracker, jobEvents),
		sseHandler:          handlers.NewSSEHandler(jobEvents),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	<-s.logCron.Stop().Done()
	s.stopJobs()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.jobStore != nil {
		if err := s.jobStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Redis job store")
		}
	}
}
