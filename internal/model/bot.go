package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bot 机器人
type Bot struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrganizationID string    `json:"organization_id" gorm:"type:varchar(36);index"`
	UserID         string    `json:"user_id" gorm:"type:varchar(36);index"`
	Name           string    `json:"name" gorm:"type:varchar(255);not null"`
	Description    string    `json:"description" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (b *Bot) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Bot) TableName() string {
	return "bots"
}
