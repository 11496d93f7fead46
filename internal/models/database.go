package models

import (
	"fmt"

	"github.com/comadj/car-system/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the configured database. SQL statements are logged at info
// level only when verbose is set.
func InitDB(cfg *config.DatabaseConfig, verbose bool) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

// AllModels lists every table the service owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&CustomerContact{},
		&Car{},
		&WeeklyReport{},
		&LLMConfig{},
		&AIUsageLog{},
		&SystemConfig{},
		&SystemLog{},
		&SchedulerLock{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// DefaultSystemConfigs are the runtime settings seeded on first start.
func DefaultSystemConfigs() []SystemConfig {
	return []SystemConfig{
		{Key: "weekly_report_enabled", Value: "true", Type: "bool", Group: "weekly_report", Label: "Enable Weekly AI Report"},
		{Key: "weekly_report_send_email", Value: "true", Type: "bool", Group: "weekly_report", Label: "Email Report After Scheduled Run"},
		{Key: "weekly_report_llm_config_id", Value: "", Type: "int", Group: "weekly_report", Label: "LLM Config For Weekly Report"},
		{Key: "weekly_report_skip_holidays", Value: "true", Type: "bool", Group: "weekly_report", Label: "Defer Run On Public Holidays"},
		{Key: "weekly_report_holiday_country", Value: "KR", Type: "string", Group: "weekly_report", Label: "Holiday Calendar"},
		{Key: "email_enabled", Value: "false", Type: "bool", Group: "email", Label: "Enable Email"},
		{Key: "email_smtp_host", Value: "", Type: "string", Group: "email", Label: "SMTP Host"},
		{Key: "email_smtp_port", Value: "587", Type: "int", Group: "email", Label: "SMTP Port"},
		{Key: "email_username", Value: "", Type: "string", Group: "email", Label: "SMTP Username"},
		{Key: "email_password", Value: "", Type: "string", Group: "email", Label: "SMTP Password"},
		{Key: "email_from", Value: "", Type: "string", Group: "email", Label: "Sender Address"},
		{Key: "email_use_tls", Value: "false", Type: "bool", Group: "email", Label: "Use Implicit TLS"},
		{Key: "ldap_enabled", Value: "false", Type: "bool", Group: "ldap", Label: "Enable LDAP Authentication"},
		{Key: "ldap_host", Value: "", Type: "string", Group: "ldap", Label: "LDAP Server Host"},
		{Key: "ldap_port", Value: "389", Type: "int", Group: "ldap", Label: "LDAP Server Port"},
		{Key: "ldap_base_dn", Value: "", Type: "string", Group: "ldap", Label: "LDAP Base DN"},
		{Key: "ldap_bind_dn", Value: "", Type: "string", Group: "ldap", Label: "LDAP Bind DN"},
		{Key: "ldap_bind_password", Value: "", Type: "string", Group: "ldap", Label: "LDAP Bind Password"},
		{Key: "ldap_user_filter", Value: "(uid=%s)", Type: "string", Group: "ldap", Label: "LDAP User Filter"},
		{Key: "ldap_use_ssl", Value: "false", Type: "bool", Group: "ldap", Label: "Use SSL/TLS"},
		{Key: "log_retention_days", Value: "90", Type: "int", Group: "system", Label: "System Log Retention Days"},
	}
}

// SeedDefaultData inserts missing system config rows. Existing values are
// never overwritten.
func SeedDefaultData(db *gorm.DB) error {
	for _, cfg := range DefaultSystemConfigs() {
		var count int64
		db.Model(&SystemConfig{}).Where(&SystemConfig{Key: cfg.Key}).Count(&count)
		if count == 0 {
			if err := db.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
