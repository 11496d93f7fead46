package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

// ReportTitleBase starts every generated report title.
const ReportTitleBase = "주간 요약 보고서_AI분석_"

// ProgressFunc receives pipeline progress. It may be nil.
type ProgressFunc func(JobProgress)

// FailureNotifier is told about a pipeline run that could not produce a
// report.
type FailureNotifier func(ctx context.Context, err error)

// ReportStore is the data access the pipeline needs.
type ReportStore interface {
	ListCarsWithContacts(ctx context.Context) ([]models.Car, error)
	ListTitlesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	InsertReport(ctx context.Context, report *models.WeeklyReport) error
}

type GormReportStore struct {
	db *gorm.DB
}

func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{db: db}
}

// ListCarsWithContacts loads every CAR, newest first, with its contacts.
func (s *GormReportStore) ListCarsWithContacts(ctx context.Context) ([]models.Car, error) {
	var cars []models.Car
	err := s.db.WithContext(ctx).
		Preload("CustomerContacts", func(db *gorm.DB) *gorm.DB {
			return db.Order("customer_contacts.id ASC")
		}).
		Order("created_at DESC").Order("id DESC").
		Find(&cars).Error
	return cars, err
}

func (s *GormReportStore) ListTitlesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var titles []string
	err := s.db.WithContext(ctx).Model(&models.WeeklyReport{}).
		Where("title LIKE ?", prefix+"%").
		Pluck("title", &titles).Error
	return titles, err
}

func (s *GormReportStore) InsertReport(ctx context.Context, report *models.WeeklyReport) error {
	return s.db.WithContext(ctx).Create(report).Error
}

// reportTitleMu serializes title allocation and insert within the process.
var reportTitleMu sync.Mutex

type WeeklyReportService struct {
	db       *gorm.DB
	store    ReportStore
	analyzer CarAnalyzer
	notifier FailureNotifier
	loc      *time.Location
	now      func() time.Time
}

func NewWeeklyReportService(db *gorm.DB, store ReportStore, analyzer CarAnalyzer, loc *time.Location) *WeeklyReportService {
	if store == nil {
		store = NewGormReportStore(db)
	}
	if loc == nil {
		loc = time.Local
	}
	return &WeeklyReportService{
		db:       db,
		store:    store,
		analyzer: analyzer,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *WeeklyReportService) SetFailureNotifier(n FailureNotifier) {
	s.notifier = n
}

func (s *WeeklyReportService) SetClock(clock func() time.Time) {
	s.now = clock
}

// Generate runs the whole pipeline and returns the inserted report.
func (s *WeeklyReportService) Generate(ctx context.Context, progress ProgressFunc) (*models.WeeklyReport, error) {
	report, err := s.generate(ctx, progress)
	if err != nil {
		logger.Error().Err(err).Msg("[WeeklyReport] generation failed")
		LogError("WeeklyReport", "Generate", "weekly report generation failed: "+err.Error(), nil, "", "", nil)
		if s.notifier != nil {
			s.notifier(context.WithoutCancel(ctx), err)
		}
		return nil, err
	}
	LogInfo("WeeklyReport", "Generate", "weekly report generated: "+report.Title, nil, "", "", map[string]interface{}{"report_id": report.ID})
	return report, nil
}

func (s *WeeklyReportService) generate(ctx context.Context, progress ProgressFunc) (*models.WeeklyReport, error) {
	emit := func(p JobProgress) {
		if progress != nil {
			progress(p)
		}
	}

	logger.Info().Msg("[WeeklyReport] generation started")
	emit(JobProgress{CurrentStep: StepLoadingData, CurrentCompany: "데이터 로딩 중..."})

	cars, err := s.store.ListCarsWithContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cars: %w", err)
	}
	logger.Infof("[WeeklyReport] loaded %d cars", len(cars))

	now := s.now().In(s.loc)
	buckets := GroupByCustomer(cars, now)
	total := len(buckets)
	emit(JobProgress{CurrentStep: StepAnalyzing, TotalCompanies: total, CurrentCompany: "분석 준비 중..."})

	blocks := make(map[string]models.CustomerReport, total)
	completed := 0
	for i := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		bucket := &buckets[i]
		emit(JobProgress{CurrentStep: StepAnalyzing, TotalCompanies: total, CompletedCompanies: completed, CurrentCompany: bucket.Name})

		blocks[bucket.Name] = s.analyzeCustomer(ctx, bucket, now)

		completed++
		next := "다음 고객사 처리 중..."
		if completed >= total {
			next = "분석 완료"
		}
		emit(JobProgress{CurrentStep: StepAnalyzing, TotalCompanies: total, CompletedCompanies: completed, CurrentCompany: next})
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation cancelled: %w", err)
	}

	emit(JobProgress{CurrentStep: StepSaving, TotalCompanies: total, CompletedCompanies: completed, CurrentCompany: "데이터베이스 저장 중..."})

	report := &models.WeeklyReport{
		WeekStart: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc),
	}
	if err := report.SetCustomers(blocks); err != nil {
		return nil, fmt.Errorf("encode report data: %w", err)
	}

	reportTitleMu.Lock()
	defer reportTitleMu.Unlock()

	title, err := s.nextTitle(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("allocate title: %w", err)
	}
	report.Title = title
	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	emit(JobProgress{CurrentStep: StepCompleted, TotalCompanies: total, CompletedCompanies: completed,
		CurrentCompany: fmt.Sprintf("보고서 생성 완료 (ID: %d)", report.ID)})
	logger.Infof("[WeeklyReport] report %d %q generated for %d customers", report.ID, report.Title, len(blocks))
	return report, nil
}

// analyzeCustomer builds one customer block. A panic inside is turned into
// the failure block so the remaining customers still run.
func (s *WeeklyReportService) analyzeCustomer(ctx context.Context, bucket *CustomerBucket, now time.Time) (block models.CustomerReport) {
	summary := models.ReportSummary{
		TotalEvents:  len(bucket.AllHistory),
		RecentEvents: len(bucket.RecentOrOpen),
		OpenEvents:   len(bucket.OpenOnly),
		AvgSentiment: AverageSentiment(bucket.AllHistory),
		ScoreSum:     ScoreSum(bucket.AllHistory),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("customer", bucket.Name).Msg("[WeeklyReport] customer analysis failed")
			block = failedCustomerReport(bucket, summary, fmt.Sprint(r), s.now())
		}
	}()

	evidence := BuildEvidence(bucket.AllHistory, now)
	issues := bucket.Issues()
	logger.Debug().Str("customer", bucket.Name).Int("issues", len(issues)).Msg("[WeeklyReport] evidence ready")

	sum := s.analyzer.Summarize(ctx, bucket.Name, evidence, issues)
	strategy := s.analyzer.RecommendStrategy(ctx, bucket.Name, evidence, issues, sum.Text)

	summary.SummaryText = sum.Text
	topIssues := sum.TopIssues
	if topIssues == nil {
		topIssues = []models.ReportIssue{}
	}
	return models.CustomerReport{
		Evidence:         evidence,
		Summary:          summary,
		TopIssues:        topIssues,
		AIRecommendation: strategy.Text,
		ParsedStrategy:   strategy.Parsed,
		GeneratedAt:      s.now(),
		Errors: models.ReportErrors{
			SummaryError:  sum.Err,
			StrategyError: strategy.Err,
		},
	}
}

func failedCustomerReport(bucket *CustomerBucket, summary models.ReportSummary, reason string, at time.Time) models.CustomerReport {
	top := make([]models.ReportIssue, 0, 5)
	for i := 0; i < len(bucket.AllHistory) && i < 5; i++ {
		top = append(top, issueFromCar(&bucket.AllHistory[i], "제목 없음", "계획 없음"))
	}
	return models.CustomerReport{
		Evidence:         bucket.Name + " 고객사의 전체 이력 분석 실패",
		Summary:          summary,
		TopIssues:        top,
		AIRecommendation: bucket.Name + " 고객사에 대한 AI 분석이 실패했습니다. 시스템 관리자에게 문의하시기 바랍니다.",
		ParsedStrategy: map[string]string{
			"전략명":   "AI 분석 실패",
			"대상":    bucket.Name,
			"요약":    "AI 시스템 오류 발생",
			"조치":    "시스템 관리자 문의 필요",
			"예상 효과": "정상 서비스 복구",
		},
		GeneratedAt: at,
		Errors:      models.ReportErrors{SummaryError: &reason, StrategyError: &reason},
	}
}

// nextTitle returns the first free 주간 요약 보고서_AI분석_YYMMDD-NN for now.
func (s *WeeklyReportService) nextTitle(ctx context.Context, now time.Time) (string, error) {
	date := now.Format("060102")
	prefix := ReportTitleBase + date + "-"
	titles, err := s.store.ListTitlesWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return NextReportTitle(date, titles), nil
}

// NextReportTitle picks max(NN)+1 among titles for date.
func NextReportTitle(date string, titles []string) string {
	pattern := regexp.MustCompile("_AI분석_" + regexp.QuoteMeta(date) + `-(\d+)$`)
	maxNumber := 0
	for _, title := range titles {
		m := pattern.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxNumber {
			maxNumber = n
		}
	}
	return fmt.Sprintf("%s%s-%02d", ReportTitleBase, date, maxNumber+1)
}

type ReportListRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

type ReportListResponse struct {
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Items    []models.WeeklyReport `json:"items"`
}

// List returns reports, newest first.
func (s *WeeklyReportService) List(req *ReportListRequest) (*ReportListResponse, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize, 10)

	var total int64
	var items []models.WeeklyReport
	query := s.db.Model(&models.WeeklyReport{})
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ReportListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

func (s *WeeklyReportService) GetByID(id uint) (*models.WeeklyReport, error) {
	var report models.WeeklyReport
	if err := s.db.First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("보고서를 찾을 수 없습니다.")
		}
		return nil, err
	}
	return &report, nil
}

// GetLatest returns the newest report by week start. corp keeps only that
// key of the data; customer narrows it further.
func (s *WeeklyReportService) GetLatest(corp, customer string) (*models.WeeklyReport, error) {
	var report models.WeeklyReport
	err := s.db.Order("week_start DESC").Order("id DESC").First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("주간 보고서 없음")
		}
		return nil, err
	}
	if corp == "" && customer == "" {
		return &report, nil
	}

	blocks, err := report.Customers()
	if err != nil {
		return nil, fmt.Errorf("decode report %d: %w", report.ID, err)
	}
	filtered := make(map[string]models.CustomerReport)
	for name, block := range blocks {
		if corp != "" && name != corp {
			continue
		}
		if customer != "" && name != customer {
			continue
		}
		filtered[name] = block
	}
	if err := report.SetCustomers(filtered); err != nil {
		return nil, err
	}
	return &report, nil
}
