package models

import "time"

// AIUsageLog records each LLM call made while building weekly reports.
type AIUsageLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	LLMConfigID      uint      `gorm:"index" json:"llm_config_id"`
	Purpose          string    `gorm:"size:50;index" json:"purpose"` // summary, strategy
	CustomerGroup    string    `gorm:"size:100" json:"customer_group"`
	Provider         string    `gorm:"size:50" json:"provider"`
	Model            string    `gorm:"size:100" json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (AIUsageLog) TableName() string { return "ai_usage_logs" }
