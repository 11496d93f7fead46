package services

import (
	"time"

	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"gorm.io/gorm"
)

// AIUsageService stores one row per LLM call and aggregates them.
type AIUsageService struct {
	db *gorm.DB
}

func NewAIUsageService(db *gorm.DB) *AIUsageService {
	return &AIUsageService{db: db}
}

// Record saves entry. Failures are logged and otherwise ignored so usage
// tracking never breaks report generation.
func (s *AIUsageService) Record(entry *models.AIUsageLog) {
	if s == nil || s.db == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.Create(entry).Error; err != nil {
		logger.Warnf("[AIUsage] failed to record usage: %v", err)
	}
}

type UsageStats struct {
	TotalCalls       int64   `json:"total_calls"`
	TotalTokens      int64   `json:"total_tokens"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	SuccessRate      float64 `json:"success_rate"`
	SuccessCount     int64   `json:"success_count"`
	FailureCount     int64   `json:"failure_count"`
}

type UsageFilter struct {
	StartDate string `form:"start_date"` // YYYY-MM-DD
	EndDate   string `form:"end_date"`
	Purpose   string `form:"purpose"`
}

func (s *AIUsageService) scoped(f UsageFilter) *gorm.DB {
	query := s.db.Model(&models.AIUsageLog{})
	if t, err := time.ParseInLocation("2006-01-02", f.StartDate, time.Local); err == nil {
		query = query.Where("created_at >= ?", t)
	}
	if t, err := time.ParseInLocation("2006-01-02", f.EndDate, time.Local); err == nil {
		query = query.Where("created_at < ?", t.AddDate(0, 0, 1))
	}
	if f.Purpose != "" {
		query = query.Where("purpose = ?", f.Purpose)
	}
	return query
}

func (s *AIUsageService) GetStats(f UsageFilter) (*UsageStats, error) {
	var stats UsageStats
	err := s.scoped(f).Select(
		"COUNT(*) as total_calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(SUM(prompt_tokens), 0) as prompt_tokens, " +
			"COALESCE(SUM(completion_tokens), 0) as completion_tokens, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
			"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) as success_count, " +
			"COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) as failure_count",
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalCalls) * 100
	}
	return &stats, nil
}

type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Purpose      string  `json:"purpose"`
	Calls        int     `json:"calls"`
	TotalTokens  int     `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
}

// GetProviderBreakdown groups usage by provider, model and purpose.
func (s *AIUsageService) GetProviderBreakdown(f UsageFilter) ([]ProviderUsage, error) {
	var results []ProviderUsage
	err := s.scoped(f).Select(
		"provider, model, purpose, " +
			"COUNT(*) as calls, " +
			"COALESCE(SUM(total_tokens), 0) as total_tokens, " +
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
			"COALESCE(AVG(CASE WHEN success THEN 100.0 ELSE 0.0 END), 0) as success_rate",
	).Group("provider, model, purpose").Order("calls DESC").Scan(&results).Error
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []ProviderUsage{}
	}
	return results, nil
}

func (s *AIUsageService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AIUsageLog{})
	return result.RowsAffected, result.Error
}
