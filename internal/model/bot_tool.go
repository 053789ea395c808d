package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BotTool bot 安装的工具
type BotTool struct {
	ID           string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotID        string            `json:"bot_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_bot_tool"`
	ToolID       string            `json:"tool_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_bot_tool"`
	IsEnabled    bool              `json:"is_enabled"`
	Config       datatypes.JSONMap `json:"config" gorm:"type:jsonb"`
	CredentialID *string           `json:"credential_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (b *BotTool) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (BotTool) TableName() string {
	return "bot_tools"
}
