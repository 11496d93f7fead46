package handlers

import (
	"context"
	"time"

	"github.com/comadj/car-system/internal/middleware"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
)

// ReportReader is the read and generate surface of the weekly report
// service.
type ReportReader interface {
	Generate(ctx context.Context, progress services.ProgressFunc) (*models.WeeklyReport, error)
	List(req *services.ReportListRequest) (*services.ReportListResponse, error)
	GetByID(id uint) (*models.WeeklyReport, error)
	GetLatest(corp, customer string) (*models.WeeklyReport, error)
}

type ReportScheduler interface {
	Start() error
	Stop()
	Status() *services.SchedulerStatus
	ManualRun(ctx context.Context) (*models.WeeklyReport, error)
}

// ReportHandler serves weekly reports, report jobs and the scheduler.
type ReportHandler struct {
	reports   ReportReader
	jobs      *services.ReportJobService
	scheduler ReportScheduler
	mailer    services.ReportMailer
	exporter  *services.ReportExporter
	timeout   time.Duration
}

func NewReportHandler(reports ReportReader, jobs *services.ReportJobService, scheduler ReportScheduler, mailer services.ReportMailer, timeout time.Duration) *ReportHandler {
	return &ReportHandler{
		reports:   reports,
		jobs:      jobs,
		scheduler: scheduler,
		mailer:    mailer,
		exporter:  services.NewReportExporter(),
		timeout:   timeout,
	}
}

// GET /api/reports/weekly-reports
func (h *ReportHandler) List(c *gin.Context) {
	var req services.ReportListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.reports.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, resp.Items, resp.Total, resp.Page, resp.PageSize)
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "report")
	if !ok {
		return
	}
	report, err := h.reports.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// GET /api/reports/weekly-reports/:id/export
func (h *ReportHandler) Export(c *gin.Context) {
	id, ok := idParam(c, "report")
	if !ok {
		return
	}
	report, err := h.reports.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.exporter.Export(report)
	if err != nil {
		response.Error(c, err)
		return
	}
	sendXLSX(c, h.exporter.FileName(report), data)
}

// GET /api/reports/weekly/latest?corp=&customer=
func (h *ReportHandler) Latest(c *gin.Context) {
	report, err := h.reports.GetLatest(c.Query("corp"), c.Query("customer"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// Generate runs the pipeline inside the request.
// POST /api/reports/generate
func (h *ReportHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	report, err := h.reports.Generate(ctx, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// GenerateAsync answers with a job id right away.
// POST /api/reports/generate-async
func (h *ReportHandler) GenerateAsync(c *gin.Context) {
	jobID, err := h.jobs.StartAsync(middleware.UserIDPtr(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{
		"jobId":   jobID,
		"status":  services.JobStarted,
		"message": "보고서 생성이 시작되었습니다.",
	})
}

// GET /api/reports/jobs/:jobId/status
func (h *ReportHandler) JobStatus(c *gin.Context) {
	snapshot, lookup := h.jobs.Tracker().Get(c.Param("jobId"))
	switch lookup {
	case services.JobNotFound:
		response.Error(c, response.NewNotFound("작업을 찾을 수 없습니다."))
	case services.JobExpired:
		response.Error(c, response.NewGone("작업이 만료되었습니다."))
	default:
		response.Success(c, snapshot)
	}
}

// GET /api/reports/jobs/active
func (h *ReportHandler) ActiveJobs(c *gin.Context) {
	response.Success(c, h.jobs.Tracker().Active())
}

type sendEmailRequest struct {
	ReportID *uint `json:"reportId"`
}

// SendEmail mails a report to the weekly recipients, the latest one when no
// id is given.
// POST /api/reports/send-email
func (h *ReportHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	var report *models.WeeklyReport
	var err error
	if req.ReportID != nil {
		report, err = h.reports.GetByID(*req.ReportID)
	} else {
		report, err = h.reports.GetLatest("", "")
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.mailer.SendWeeklyReport(c.Request.Context(), report)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GET /api/reports/scheduler/status
func (h *ReportHandler) SchedulerStatus(c *gin.Context) {
	response.Success(c, h.scheduler.Status())
}

// POST /api/reports/scheduler/start
func (h *ReportHandler) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.scheduler.Status())
}

// POST /api/reports/scheduler/stop
func (h *ReportHandler) StopScheduler(c *gin.Context) {
	h.scheduler.Stop()
	response.Success(c, h.scheduler.Status())
}

// POST /api/reports/scheduler/manual-run
func (h *ReportHandler) ManualRun(c *gin.Context) {
	report, err := h.scheduler.ManualRun(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
