package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lead 线索
type Lead struct {
	ID             string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotID          string            `json:"bot_id" gorm:"type:varchar(36);not null;index"`
	ConversationID string            `json:"conversation_id,omitempty" gorm:"type:varchar(36);index"`
	Name           string            `json:"name,omitempty" gorm:"type:varchar(255)"`
	Email          string            `json:"email,omitempty" gorm:"type:varchar(255)"`
	Phone          string            `json:"phone,omitempty" gorm:"type:varchar(64)"`
	Company        string            `json:"company,omitempty" gorm:"type:varchar(255)"`
	Fields         datatypes.JSONMap `json:"fields,omitempty" gorm:"type:jsonb"`
	Source         string            `json:"source" gorm:"type:varchar(50)"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Lead) TableName() string {
	return "leads"
}
