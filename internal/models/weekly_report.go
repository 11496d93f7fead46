package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// WeeklyReport is written once per pipeline run and never updated.
type WeeklyReport struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"uniqueIndex;size:200;not null" json:"title"`
	WeekStart time.Time      `gorm:"index" json:"week_start"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (WeeklyReport) TableName() string { return "weekly_reports" }

// CustomerReport is the per-customer block stored under WeeklyReport.Data.
type CustomerReport struct {
	Evidence         string            `json:"evidence"`
	Summary          ReportSummary     `json:"summary"`
	TopIssues        []ReportIssue     `json:"topIssues"`
	AIRecommendation string            `json:"aiRecommendation"`
	ParsedStrategy   map[string]string `json:"parsedStrategy"`
	GeneratedAt      time.Time         `json:"generatedAt"`
	Errors           ReportErrors      `json:"errors"`
}

type ReportSummary struct {
	TotalEvents  int      `json:"totalEvents"`
	RecentEvents int      `json:"recentEvents"`
	OpenEvents   int      `json:"openEvents"`
	AvgSentiment *float64 `json:"avgSentiment"`
	ScoreSum     float64  `json:"scoreSum"`
	SummaryText  string   `json:"summaryText,omitempty"`
}

type ReportIssue struct {
	Title string  `json:"title"`
	Plan  string  `json:"plan"`
	Score float64 `json:"score"`
}

type ReportErrors struct {
	SummaryError  *string `json:"summaryError"`
	StrategyError *string `json:"strategyError"`
}

func (e ReportErrors) Any() bool {
	return e.SummaryError != nil || e.StrategyError != nil
}

// Customers decodes Data.
func (r *WeeklyReport) Customers() (map[string]CustomerReport, error) {
	out := map[string]CustomerReport{}
	if len(r.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *WeeklyReport) SetCustomers(blocks map[string]CustomerReport) error {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	r.Data = datatypes.JSON(raw)
	return nil
}
