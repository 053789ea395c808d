package repository

import (
	"context"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
)

// LeadRepository 线索数据访问
type LeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository 创建线索仓库
func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create 创建线索
func (r *LeadRepository) Create(ctx context.Context, lead *model.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

// GetByID 获取线索
func (r *LeadRepository) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &lead, nil
}

// ListByBot 列出 bot 的线索
func (r *LeadRepository) ListByBot(ctx context.Context, botID string, offset, limit int) ([]*model.Lead, error) {
	var leads []*model.Lead
	err := r.db.WithContext(ctx).Where("bot_id = ?", botID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&leads).Error
	return leads, err
}
