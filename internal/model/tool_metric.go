package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ToolUsageMetric 工具使用计数，(tool, bot, function) 唯一
type ToolUsageMetric struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ToolID       string    `json:"tool_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_tool_usage"`
	BotID        string    `json:"bot_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_tool_usage"`
	FunctionName string    `json:"function_name" gorm:"type:varchar(100);not null;uniqueIndex:idx_tool_usage"`
	UsageCount   int64     `json:"usage_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (m *ToolUsageMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (ToolUsageMetric) TableName() string {
	return "tool_usage_metrics"
}

// ToolExecutionError 工具执行错误日志
type ToolExecutionError struct {
	ID           string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	ToolID       string            `json:"tool_id" gorm:"type:varchar(64);not null;index"`
	BotID        string            `json:"bot_id" gorm:"type:varchar(36);index"`
	FunctionName string            `json:"function_name" gorm:"type:varchar(100)"`
	Message      string            `json:"message" gorm:"type:text"`
	Stack        string            `json:"stack,omitempty" gorm:"type:text"`
	Params       datatypes.JSONMap `json:"params,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子
func (e *ToolExecutionError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (ToolExecutionError) TableName() string {
	return "tool_execution_errors"
}
