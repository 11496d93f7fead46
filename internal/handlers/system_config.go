package handlers

import (
	"github.com/comadj/car-system/internal/services"
	"github.com/comadj/car-system/pkg/response"
	"github.com/gin-gonic/gin"
)

// SystemConfigHandler edits the runtime settings stored in system_configs.
type SystemConfigHandler struct {
	configService *services.SystemConfigService
	emailService  *services.EmailService
	holidays      *services.HolidayService
}

func NewSystemConfigHandler(configService *services.SystemConfigService, emailService *services.EmailService, holidays *services.HolidayService) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: configService,
		emailService:  emailService,
		holidays:      holidays,
	}
}

func (h *SystemConfigHandler) GetWeeklyReport(c *gin.Context) {
	response.Success(c, h.configService.GetWeeklyReportSettings())
}

func (h *SystemConfigHandler) UpdateWeeklyReport(c *gin.Context) {
	var req services.UpdateWeeklyReportSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.configService.UpdateWeeklyReportSettings(&req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.configService.GetWeeklyReportSettings())
}

// GetEmail never returns the SMTP password.
func (h *SystemConfigHandler) GetEmail(c *gin.Context) {
	response.Success(c, h.emailService.GetConfig())
}

func (h *SystemConfigHandler) UpdateEmail(c *gin.Context) {
	var req services.UpdateEmailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.emailService.UpdateConfig(&req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.emailService.GetConfig())
}

func (h *SystemConfigHandler) GetLDAPConfig(c *gin.Context) {
	response.Success(c, h.configService.GetLDAPConfig())
}

func (h *SystemConfigHandler) UpdateLDAPConfig(c *gin.Context) {
	var req services.UpdateLDAPConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.configService.UpdateLDAPConfig(&req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.configService.GetLDAPConfig())
}

func (h *SystemConfigHandler) GetHolidayCountries(c *gin.Context) {
	response.Success(c, h.holidays.GetSupportedCountries())
}
