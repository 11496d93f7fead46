package models

import (
	"time"

	"gorm.io/gorm"
)

// LLMConfig is a provider endpoint the report pipeline can call. Provider is
// one of openai, azure, anthropic, ollama, gemini.
type LLMConfig struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:100;not null" json:"name"`
	Provider       string         `gorm:"size:50;default:openai" json:"provider"`
	BaseURL        string         `gorm:"size:500" json:"base_url"`
	APIKey         string         `gorm:"size:500" json:"-"`
	APIKeyMask     string         `gorm:"-" json:"api_key_mask"`
	Model          string         `gorm:"size:100" json:"model"`
	MaxTokens      int            `gorm:"default:2000" json:"max_tokens"`
	Temperature    float64        `gorm:"default:0.3" json:"temperature"`
	TimeoutSeconds int            `gorm:"default:120" json:"timeout_seconds"`
	IsDefault      bool           `gorm:"default:false" json:"is_default"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (LLMConfig) TableName() string { return "llm_configs" }

func (l *LLMConfig) MaskAPIKey() string {
	if len(l.APIKey) <= 8 {
		return "****"
	}
	return l.APIKey[:4] + "****" + l.APIKey[len(l.APIKey)-4:]
}

func (l *LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}
