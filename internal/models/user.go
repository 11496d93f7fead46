package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleStaff   = "STAFF"
)

// ValidRole reports whether role is one of the three account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

type User struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Username          string         `gorm:"uniqueIndex;size:100;not null" json:"username"` // login id
	Password          string         `gorm:"size:255" json:"-"`                             // empty for LDAP users
	Name              string         `gorm:"size:100" json:"name"`
	Email             string         `gorm:"size:255" json:"email"`
	Department        string         `gorm:"size:100" json:"department"`
	Role              string         `gorm:"size:20;default:STAFF;index" json:"role"`
	WeeklyReportEmail bool           `gorm:"default:false" json:"weekly_report_email"`
	AuthType          string         `gorm:"size:20;default:local" json:"auth_type"` // local, ldap
	IsActive          bool           `gorm:"default:true" json:"is_active"`
	LastLogin         *time.Time     `json:"last_login"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
