package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
)

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建会话
func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID 获取会话
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SetPaused 暂停会话
func (r *ConversationRepository) SetPaused(ctx context.Context, id, reason string, at time.Time) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       model.ConversationPaused,
		"paused_at":    at,
		"pause_reason": reason,
	})
}

// SetActive 恢复会话
func (r *ConversationRepository) SetActive(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       model.ConversationActive,
		"paused_at":    nil,
		"pause_reason": "",
	})
}

func (r *ConversationRepository) updateStatus(ctx context.Context, id string, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
