package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 凭证提供方
const (
	ProviderGoogle      = "google"
	ProviderGoHighLevel = "gohighlevel"
)

// Credential 第三方凭证，Credentials 字段为加密信封
type Credential struct {
	ID          string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID      string            `json:"user_id" gorm:"type:varchar(36);not null;index:idx_credential_lookup"`
	BotID       *string           `json:"bot_id,omitempty" gorm:"type:varchar(36);index:idx_credential_lookup"`
	Provider    string            `json:"provider" gorm:"type:varchar(50);not null;index:idx_credential_lookup"`
	Credentials datatypes.JSONMap `json:"-" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Credential) TableName() string {
	return "credentials"
}

// Integration bot 连接的第三方集成
type Integration struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotID        string    `json:"bot_id" gorm:"type:varchar(36);not null;index"`
	Provider     string    `json:"provider" gorm:"type:varchar(50);not null"`
	Status       string    `json:"status" gorm:"type:varchar(20)"`
	CredentialID *string   `json:"credential_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Integration) TableName() string {
	return "integrations"
}
