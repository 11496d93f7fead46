package models

import (
	"time"

	"github.com/comadj/car-system/internal/scoring"
)

// Car is one Customer Action Request. Dates are epoch milliseconds. Score
// and SentimentScore are derived and always written together; Status is
// computed on read.
type Car struct {
	ID               uint     `gorm:"primaryKey" json:"id"`
	Corporation      string   `gorm:"size:100;index" json:"corporation"`
	EventType        string   `gorm:"size:20;index;not null" json:"event_type"`
	MainCategory     string   `gorm:"size:100;index" json:"main_category"`
	ReceptionChannel string   `gorm:"size:100" json:"reception_channel"`
	InternalContact  string   `gorm:"size:100;index" json:"internal_contact"`
	IssueDate        int64    `gorm:"index;not null" json:"issue_date"`
	DueDate          *int64   `json:"due_date"`
	CompletionDate   *int64   `json:"completion_date"`
	Importance       *float64 `json:"importance"`
	InternalScore    *float64 `json:"internal_score"`
	CustomerScore    *float64 `json:"customer_score"`
	SubjectiveScore  *float64 `json:"subjective_score"`
	OpenIssue        string   `gorm:"type:text" json:"open_issue"`
	FollowUpPlan     string   `gorm:"type:text" json:"follow_up_plan"`
	AIKeywords       string   `gorm:"type:text" json:"ai_keywords"`
	Score            float64  `gorm:"default:0" json:"score"`
	SentimentScore   *float64 `json:"sentiment_score"`
	CreatedBy        *uint    `gorm:"index" json:"created_by"`

	CustomerContacts []CustomerContact `gorm:"many2many:car_customer_contacts;" json:"customer_contacts"`

	Status scoring.Status `gorm:"-" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Car) TableName() string { return "cars" }

func (c *Car) ScoringInput() scoring.Input {
	return scoring.Input{
		EventType:       c.EventType,
		DueDate:         c.DueDate,
		CompletionDate:  c.CompletionDate,
		Importance:      c.Importance,
		InternalScore:   c.InternalScore,
		CustomerScore:   c.CustomerScore,
		SubjectiveScore: c.SubjectiveScore,
		OpenIssue:       c.OpenIssue,
		FollowUpPlan:    c.FollowUpPlan,
	}
}

// Rescore recomputes Score and SentimentScore from the other fields.
func (c *Car) Rescore() {
	c.Score, c.SentimentScore = scoring.Compute(c.ScoringInput())
}

// FillStatus sets the transient Status field for now.
func (c *Car) FillStatus(now time.Time) {
	var due, completion any
	if c.DueDate != nil {
		due = *c.DueDate
	}
	if c.CompletionDate != nil {
		completion = *c.CompletionDate
	}
	c.Status = scoring.DeriveStatus(c.EventType, due, completion, now)
}

func (c *Car) IsOpen() bool {
	return c.CompletionDate == nil || *c.CompletionDate == 0
}

// PrimaryGroup is the customer group of the first linked contact, or "" when
// there is none.
func (c *Car) PrimaryGroup() string {
	if len(c.CustomerContacts) == 0 {
		return ""
	}
	return c.CustomerContacts[0].Group
}
