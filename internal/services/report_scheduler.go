package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	weeklyReportLockName = "weekly_report"
	schedulerLockTTL     = 7 * 24 * time.Hour
)

type ReportGenerator interface {
	Generate(ctx context.Context, progress ProgressFunc) (*models.WeeklyReport, error)
}

type ReportMailer interface {
	SendWeeklyReport(ctx context.Context, report *models.WeeklyReport) (*EmailResult, error)
}

type SchedulerStatus struct {
	IsRunning      bool       `json:"isRunning"`
	NextRun        *time.Time `json:"nextRun"`
	CronExpression string     `json:"cronExpression"`
	Timezone       string     `json:"timezone"`
	Description    string     `json:"description"`
}

// ReportScheduler fires the weekly report on the first workday of each week.
type ReportScheduler struct {
	db         *gorm.DB
	generator  ReportGenerator
	mailer     ReportMailer
	holidays   *HolidayService
	settings   *SystemConfigService
	cfg        config.ReportConfig
	loc        *time.Location
	instanceID string
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewReportScheduler(db *gorm.DB, generator ReportGenerator, mailer ReportMailer, holidays *HolidayService, cfg config.ReportConfig) *ReportScheduler {
	host, _ := os.Hostname()
	return &ReportScheduler{
		db:         db,
		generator:  generator,
		mailer:     mailer,
		holidays:   holidays,
		settings:   NewSystemConfigService(db),
		cfg:        cfg,
		loc:        cfg.Location(),
		instanceID: fmt.Sprintf("%s-%d", host, os.Getpid()),
		now:        time.Now,
	}
}

func (s *ReportScheduler) SetClock(clock func() time.Time) {
	s.now = clock
}

// Start registers the cron entry. Starting a running scheduler is a no-op.
func (s *ReportScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	entryID, err := c.AddFunc(s.cfg.Cron, func() {
		if err := s.RunScheduled(context.Background()); err != nil {
			logger.Errorf("[Scheduler] scheduled weekly report failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Cron, err)
	}
	c.Start()
	s.cron = c
	s.entryID = entryID

	logger.Infof("[Scheduler] weekly report scheduled (cron: %s, tz: %s)", s.cfg.Cron, s.loc)
	LogInfo("Scheduler", "start", "weekly report scheduler started", nil, "", "", map[string]string{"cron": s.cfg.Cron})
	return nil
}

func (s *ReportScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.entryID = 0
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	logger.Info().Msg("[Scheduler] weekly report scheduler stopped")
	LogInfo("Scheduler", "stop", "weekly report scheduler stopped", nil, "", "", nil)
}

func (s *ReportScheduler) Status() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		IsRunning:      s.cron != nil,
		CronExpression: s.cfg.Cron,
		Timezone:       s.loc.String(),
		Description:    "매주 첫 영업일 주간 AI 보고서 생성 및 이메일 발송",
	}
	if s.cron != nil {
		next := s.cron.Entry(s.entryID).Next
		if !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// ManualRun generates a report immediately without the workday check or
// email distribution.
func (s *ReportScheduler) ManualRun(ctx context.Context) (*models.WeeklyReport, error) {
	logger.Info().Msg("[Scheduler] manual weekly report run")
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()
	return s.generator.Generate(ctx, nil)
}

// RunScheduled is the cron body. It returns nil when today is skipped.
func (s *ReportScheduler) RunScheduled(ctx context.Context) error {
	now := s.now().In(s.loc)
	ok, reason := s.shouldRun(now)
	if !ok {
		logger.Infof("[Scheduler] weekly report skipped: %s", reason)
		return nil
	}

	acquired, err := s.acquireLock(now)
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !acquired {
		logger.Infof("[Scheduler] weekly report for %s already claimed by another instance", now.Format("2006-01-02"))
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	report, err := s.generator.Generate(runCtx, nil)
	if err != nil {
		return err
	}

	if !s.settings.GetWeeklyReportSettings().SendEmail || s.mailer == nil {
		return nil
	}
	result, err := s.mailer.SendWeeklyReport(runCtx, report)
	if err != nil {
		LogError("Scheduler", "send_email", "weekly report email failed: "+err.Error(), nil, "", "", map[string]uint{"report_id": report.ID})
		return fmt.Errorf("send weekly report: %w", err)
	}
	logger.Infof("[Scheduler] weekly report %d distributed: %s", report.ID, result.Message)
	return nil
}

func (s *ReportScheduler) shouldRun(now time.Time) (bool, string) {
	settings := s.settings.GetWeeklyReportSettings()
	if !settings.Enabled {
		return false, "disabled"
	}
	country := settings.HolidayCountry
	if !settings.SkipHolidays {
		country = "NONE"
	}
	if !s.holidays.IsFirstWorkdayOfWeek(now, country) {
		return false, fmt.Sprintf("%s is not the first workday of the week (%s)", now.Format("2006-01-02"), country)
	}
	return true, ""
}

// acquireLock claims today's run. A unique index on (lock_name, lock_key)
// makes the insert fail for every instance but one.
func (s *ReportScheduler) acquireLock(now time.Time) (bool, error) {
	if err := s.db.Where("expires_at < ?", now).Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warnf("[Scheduler] purge expired locks: %v", err)
	}

	key := now.Format("060102")
	var count int64
	if err := s.db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ?", weeklyReportLockName, key).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	lock := models.SchedulerLock{
		LockName:  weeklyReportLockName,
		LockKey:   key,
		LockedBy:  s.instanceID,
		LockedAt:  now,
		ExpiresAt: now.Add(schedulerLockTTL),
	}
	if err := s.db.Create(&lock).Error; err != nil {
		// lost the race to another instance
		logger.Debug().Err(err).Msg("[Scheduler] lock insert rejected")
		return false, nil
	}
	return true, nil
}
