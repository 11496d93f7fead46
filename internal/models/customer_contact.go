package models

import "time"

// CustomerContact is a person at a customer organization. Group is the
// customer organization that weekly reports are keyed on.
type CustomerContact struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:100;not null;index" json:"name"`
	Group      string    `gorm:"column:group_name;size:100;index" json:"group"`
	Company    string    `gorm:"size:100;index" json:"company"`
	Department string    `gorm:"size:100" json:"department"`
	Phone      string    `gorm:"size:50" json:"phone"`
	Email      string    `gorm:"size:255" json:"email"`
	Memo       string    `gorm:"type:text" json:"memo"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (CustomerContact) TableName() string { return "customer_contacts" }
