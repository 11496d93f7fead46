package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) GetBool(key string, defaultValue bool) bool {
	value, err := s.Get(key)
	if err != nil || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return b
}

func (s *SystemConfigService) GetInt(key string, defaultValue int) int {
	value, err := s.Get(key)
	if err != nil || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

// Set upserts key. New keys land in the group named by the key prefix.
func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
			Group: groupOf(key),
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Group: group}).Order("config_key").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func groupOf(key string) string {
	switch {
	case strings.HasPrefix(key, "weekly_report_"):
		return "weekly_report"
	case strings.HasPrefix(key, "email_"):
		return "email"
	case strings.HasPrefix(key, "ldap_"):
		return "ldap"
	}
	return "system"
}

// WeeklyReportSettings are the runtime knobs of the scheduled report.
type WeeklyReportSettings struct {
	Enabled        bool   `json:"enabled"`
	SendEmail      bool   `json:"send_email"`
	LLMConfigID    *uint  `json:"llm_config_id"`
	SkipHolidays   bool   `json:"skip_holidays"`
	HolidayCountry string `json:"holiday_country"`
}

func (s *SystemConfigService) GetWeeklyReportSettings() *WeeklyReportSettings {
	out := &WeeklyReportSettings{
		Enabled:        s.GetBool("weekly_report_enabled", true),
		SendEmail:      s.GetBool("weekly_report_send_email", true),
		SkipHolidays:   s.GetBool("weekly_report_skip_holidays", true),
		HolidayCountry: s.GetWithDefault("weekly_report_holiday_country", "KR"),
	}
	if id := s.GetInt("weekly_report_llm_config_id", 0); id > 0 {
		uid := uint(id)
		out.LLMConfigID = &uid
	}
	return out
}

type UpdateWeeklyReportSettingsRequest struct {
	Enabled        *bool   `json:"enabled"`
	SendEmail      *bool   `json:"send_email"`
	LLMConfigID    *uint   `json:"llm_config_id"`
	SkipHolidays   *bool   `json:"skip_holidays"`
	HolidayCountry *string `json:"holiday_country"`
}

func (s *SystemConfigService) UpdateWeeklyReportSettings(req *UpdateWeeklyReportSettingsRequest) error {
	updates := map[string]string{}
	if req.Enabled != nil {
		updates["weekly_report_enabled"] = strconv.FormatBool(*req.Enabled)
	}
	if req.SendEmail != nil {
		updates["weekly_report_send_email"] = strconv.FormatBool(*req.SendEmail)
	}
	if req.LLMConfigID != nil {
		value := ""
		if *req.LLMConfigID > 0 {
			value = strconv.FormatUint(uint64(*req.LLMConfigID), 10)
		}
		updates["weekly_report_llm_config_id"] = value
	}
	if req.SkipHolidays != nil {
		updates["weekly_report_skip_holidays"] = strconv.FormatBool(*req.SkipHolidays)
	}
	if req.HolidayCountry != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.HolidayCountry))
		if !IsSupportedCountry(code) {
			return response.NewBadRequest("unsupported holiday country: " + code)
		}
		updates["weekly_report_holiday_country"] = code
	}
	return s.setAll(updates)
}

func (s *SystemConfigService) setAll(updates map[string]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		scoped := &SystemConfigService{db: tx}
		for k, v := range updates {
			if err := scoped.Set(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

type LDAPConfigResponse struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	BaseDN      string `json:"base_dn"`
	BindDN      string `json:"bind_dn"`
	UserFilter  string `json:"user_filter"`
	UseSSL      bool   `json:"use_ssl"`
	PasswordSet bool   `json:"password_set"`
}

func (s *SystemConfigService) GetLDAPConfig() *LDAPConfigResponse {
	return &LDAPConfigResponse{
		Enabled:     s.GetBool("ldap_enabled", false),
		Host:        s.GetWithDefault("ldap_host", ""),
		Port:        s.GetInt("ldap_port", 389),
		BaseDN:      s.GetWithDefault("ldap_base_dn", ""),
		BindDN:      s.GetWithDefault("ldap_bind_dn", ""),
		UserFilter:  s.GetWithDefault("ldap_user_filter", "(uid=%s)"),
		UseSSL:      s.GetBool("ldap_use_ssl", false),
		PasswordSet: s.GetWithDefault("ldap_bind_password", "") != "",
	}
}

type UpdateLDAPConfigRequest struct {
	Enabled      *bool   `json:"enabled"`
	Host         *string `json:"host"`
	Port         *int    `json:"port"`
	BaseDN       *string `json:"base_dn"`
	BindDN       *string `json:"bind_dn"`
	BindPassword *string `json:"bind_password"`
	UserFilter   *string `json:"user_filter"`
	UseSSL       *bool   `json:"use_ssl"`
}

func (s *SystemConfigService) UpdateLDAPConfig(req *UpdateLDAPConfigRequest) error {
	updates := map[string]string{}
	if req.Enabled != nil {
		updates["ldap_enabled"] = strconv.FormatBool(*req.Enabled)
	}
	if req.Host != nil {
		updates["ldap_host"] = *req.Host
	}
	if req.Port != nil {
		updates["ldap_port"] = strconv.Itoa(*req.Port)
	}
	if req.BaseDN != nil {
		updates["ldap_base_dn"] = *req.BaseDN
	}
	if req.BindDN != nil {
		updates["ldap_bind_dn"] = *req.BindDN
	}
	// An empty password in the form means "unchanged".
	if req.BindPassword != nil && *req.BindPassword != "" {
		updates["ldap_bind_password"] = *req.BindPassword
	}
	if req.UserFilter != nil {
		updates["ldap_user_filter"] = *req.UserFilter
	}
	if req.UseSSL != nil {
		updates["ldap_use_ssl"] = strconv.FormatBool(*req.UseSSL)
	}
	return s.setAll(updates)
}

// splitAndTrim splits s on sep and drops empty parts.
func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
