package model

import (
	"time"
)

type UserRole string

const (
	Candidate UserRole = "candidate"
	Coach     UserRole = "coach"
	Admin     UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name          string    `gorm:"size:100;not null" json:"Name"`
	Email         string    `gorm:"size:100;unique;not null" json:"Email"`
	Password      string    `gorm:"size:100;not null" json:"-"`
	Role          UserRole  `gorm:"type:enum('candidate','coach','admin');default:'candidate'" json:"Role"`
	TargetRole    string    `gorm:"size:100" json:"TargetRole"` // 目标岗位，用于面试题目定向
	Experience    string    `gorm:"size:50" json:"Experience"`  // junior / mid / senior
	Language      string    `gorm:"size:10;default:'en'" json:"Language"`
	Avatar        string    `gorm:"size:255" json:"avatar"`
	Resume        string    `gorm:"size:255" json:"resume"`
	Disabled      bool      `gorm:"default:false" json:"Disabled"`
	LastLogin     time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"LastLogin"`
	LastSeen      time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"LastSeen"`
	SessionsTotal int       `gorm:"default:0" json:"SessionsTotal"` // 冗余计数，完整统计见 UserProgress
}

func (User) TableName() string {
	return "users"
}
