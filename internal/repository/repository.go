package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB           *gorm.DB // 直接访问数据库
	Bot          *BotRepository
	Tool         *ToolRepository
	BotTool      *BotToolRepository
	Credential   *CredentialRepository
	Appointment  *AppointmentRepository
	Lead         *LeadRepository
	Conversation *ConversationRepository
	Metric       *MetricRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:           db,
		Bot:          NewBotRepository(db),
		Tool:         NewToolRepository(db),
		BotTool:      NewBotToolRepository(db),
		Credential:   NewCredentialRepository(db),
		Appointment:  NewAppointmentRepository(db),
		Lead:         NewLeadRepository(db),
		Conversation: NewConversationRepository(db),
		Metric:       NewMetricRepository(db),
	}
}

// notFound 将 gorm 的记录不存在错误转换为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
