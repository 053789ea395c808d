package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 会话状态
const (
	ConversationActive = "active"
	ConversationPaused = "paused"
)

// Conversation 终端用户与 bot 的会话
type Conversation struct {
	ID          string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotID       string     `json:"bot_id" gorm:"type:varchar(36);not null;index"`
	Channel     string     `json:"channel" gorm:"type:varchar(50)"` // playground, iframe, webhook
	Status      string     `json:"status" gorm:"type:varchar(20);index"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	PauseReason string     `json:"pause_reason,omitempty" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	return nil
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// IsPaused 会话是否已暂停
func (c *Conversation) IsPaused() bool {
	return c.Status == ConversationPaused
}
