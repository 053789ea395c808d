package repository

import (
	"context"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
)

// BotRepository 机器人数据访问
type BotRepository struct {
	db *gorm.DB
}

// NewBotRepository 创建机器人仓库
func NewBotRepository(db *gorm.DB) *BotRepository {
	return &BotRepository{db: db}
}

// Create 创建机器人
func (r *BotRepository) Create(ctx context.Context, bot *model.Bot) error {
	return r.db.WithContext(ctx).Create(bot).Error
}

// GetByID 获取机器人
func (r *BotRepository) GetByID(ctx context.Context, id string) (*model.Bot, error) {
	var bot model.Bot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bot).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}
