package handlers

import (
	"time"

	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(db *gorm.DB, loc *time.Location) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: services.NewDashboardService(db, loc),
	}
}

type accumulatedScoresQuery struct {
	GroupType string `form:"groupType"`
	Year      int    `form:"year"`
	Month     int    `form:"month"`
}

type monthlyTrendQuery struct {
	GroupType string `form:"groupType"`
	Months    int    `form:"months"`
}

// GET /api/dashboard/status-stats
func (h *DashboardHandler) GetStatusStats(c *gin.Context) {
	stats, err := h.dashboardService.GetStatusStats()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// GetAccumulatedScores also honours the CAR list filters.
// GET /api/dashboard/accumulated-scores
func (h *DashboardHandler) GetAccumulatedScores(c *gin.Context) {
	var q accumulatedScoresQuery
	var filter services.CarListRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.GroupType == "" {
		q.GroupType = services.GroupTypeCompany
	}

	scores, err := h.dashboardService.GetAccumulatedScores(q.GroupType, q.Year, q.Month, &filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, scores)
}

// GET /api/dashboard/monthly-trend
func (h *DashboardHandler) GetMonthlyTrend(c *gin.Context) {
	var q monthlyTrendQuery
	var filter services.CarListRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.GroupType == "" {
		q.GroupType = services.GroupTypeCompany
	}

	trend, err := h.dashboardService.GetMonthlyTrend(q.GroupType, q.Months, &filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, trend)
}
