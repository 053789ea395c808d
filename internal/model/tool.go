package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Tool 工具记录
// 内置工具启动时写入一行用于全局启停，自定义工具的定义全部来自这一行
type Tool struct {
	ID              string         `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name            string         `json:"name" gorm:"type:varchar(255);not null"`
	Description     string         `json:"description" gorm:"type:text"`
	Type            string         `json:"type" gorm:"type:varchar(50);index"`
	IsActive        bool           `json:"is_active" gorm:"index"`
	Functions       datatypes.JSON `json:"functions,omitempty" gorm:"type:jsonb"`
	FunctionsSchema datatypes.JSON `json:"functions_schema,omitempty" gorm:"type:jsonb"`
	RequiredConfigs datatypes.JSON `json:"required_configs,omitempty" gorm:"type:jsonb"`
	CreatedByBotID  *string        `json:"created_by_bot_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Tool) TableName() string {
	return "tools"
}

// IsPublic 未绑定 bot 的自定义工具对所有 bot 可见
func (t *Tool) IsPublic() bool {
	return t.CreatedByBotID == nil || *t.CreatedByBotID == ""
}

// CustomToolParameter 自定义工具参数
type CustomToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	ItemsType   string   `json:"itemsType,omitempty"`
}

// CustomToolFunction 自定义工具函数描述
type CustomToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  []CustomToolParameter  `json:"parameters"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
}

// CustomToolFunctions 自定义工具只有一个 execute 函数
type CustomToolFunctions struct {
	Execute *CustomToolFunction `json:"execute"`
}

// CustomToolHeader 额外 HTTP 头
type CustomToolHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CustomToolConfigs 自定义工具的 HTTP 配置
type CustomToolConfigs struct {
	ServerURL   string             `json:"serverUrl"`
	SecretToken string             `json:"secretToken,omitempty"`
	Timeout     int                `json:"timeout,omitempty"` // 秒
	HTTPHeaders []CustomToolHeader `json:"httpHeaders,omitempty"`
	Async       bool               `json:"async,omitempty"`
	Strict      bool               `json:"strict,omitempty"`
}

// ExecuteFunction 解析 execute 函数描述，未设置时返回 nil
func (t *Tool) ExecuteFunction() (*CustomToolFunction, error) {
	if isEmptyJSON(t.Functions) {
		return nil, nil
	}
	var fns CustomToolFunctions
	if err := json.Unmarshal(t.Functions, &fns); err != nil {
		return nil, fmt.Errorf("failed to decode tool functions: %w", err)
	}
	return fns.Execute, nil
}

// HTTPConfig 解析 HTTP 配置，未设置时返回 nil
func (t *Tool) HTTPConfig() (*CustomToolConfigs, error) {
	if isEmptyJSON(t.RequiredConfigs) {
		return nil, nil
	}
	var cfg CustomToolConfigs
	if err := json.Unmarshal(t.RequiredConfigs, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode tool configs: %w", err)
	}
	return &cfg, nil
}

func isEmptyJSON(b datatypes.JSON) bool {
	s := string(b)
	return len(s) == 0 || s == "null" || s == "{}"
}
