package repository

import (
	"context"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
)

// BotToolRepository bot 工具安装数据访问
type BotToolRepository struct {
	db *gorm.DB
}

// NewBotToolRepository 创建 bot 工具仓库
func NewBotToolRepository(db *gorm.DB) *BotToolRepository {
	return &BotToolRepository{db: db}
}

// Create 安装工具
func (r *BotToolRepository) Create(ctx context.Context, bt *model.BotTool) error {
	return r.db.WithContext(ctx).Create(bt).Error
}

// Get 获取 bot 的工具安装记录
func (r *BotToolRepository) Get(ctx context.Context, botID, toolID string) (*model.BotTool, error) {
	var bt model.BotTool
	err := r.db.WithContext(ctx).Where("bot_id = ? AND tool_id = ?", botID, toolID).First(&bt).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &bt, nil
}

// ListByBot 列出 bot 安装的所有工具
func (r *BotToolRepository) ListByBot(ctx context.Context, botID string) ([]*model.BotTool, error) {
	var bts []*model.BotTool
	err := r.db.WithContext(ctx).Where("bot_id = ?", botID).Order("created_at ASC").Find(&bts).Error
	return bts, err
}

// Update 更新安装记录
func (r *BotToolRepository) Update(ctx context.Context, bt *model.BotTool) error {
	return r.db.WithContext(ctx).Save(bt).Error
}

// Delete 卸载工具
func (r *BotToolRepository) Delete(ctx context.Context, botID, toolID string) error {
	result := r.db.WithContext(ctx).Delete(&model.BotTool{}, "bot_id = ? AND tool_id = ?", botID, toolID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
