package repository

import (
	"context"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToolTypeCustom 自定义工具类型
const ToolTypeCustom = "CUSTOM"

// ToolRepository 工具数据访问
type ToolRepository struct {
	db *gorm.DB
}

// NewToolRepository 创建工具仓库
func NewToolRepository(db *gorm.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

// Create 创建工具
func (r *ToolRepository) Create(ctx context.Context, tool *model.Tool) error {
	return r.db.WithContext(ctx).Create(tool).Error
}

// EnsureBuiltin 写入内置工具记录，已存在时只更新名称和描述，保留 is_active
func (r *ToolRepository) EnsureBuiltin(ctx context.Context, tool *model.Tool) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "type", "updated_at"}),
	}).Create(tool).Error
}

// GetByID 获取工具
func (r *ToolRepository) GetByID(ctx context.Context, id string) (*model.Tool, error) {
	var tool model.Tool
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tool).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tool, nil
}

// FindActiveCustomForBot 查找对 bot 可见的活跃自定义工具（bot 私有或公共）
func (r *ToolRepository) FindActiveCustomForBot(ctx context.Context, id, botID string) (*model.Tool, error) {
	var tool model.Tool
	err := r.db.WithContext(ctx).
		Where("id = ? AND type = ? AND is_active = ?", id, ToolTypeCustom, true).
		Where("created_by_bot_id = ? OR created_by_bot_id IS NULL OR created_by_bot_id = ''", botID).
		First(&tool).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tool, nil
}

// ListActivePublicCustom 列出所有活跃的公共自定义工具
func (r *ToolRepository) ListActivePublicCustom(ctx context.Context) ([]*model.Tool, error) {
	var tools []*model.Tool
	err := r.db.WithContext(ctx).
		Where("type = ? AND is_active = ?", ToolTypeCustom, true).
		Where("created_by_bot_id IS NULL OR created_by_bot_id = ''").
		Order("created_at ASC").
		Find(&tools).Error
	return tools, err
}

// ListCustomForBot 列出 bot 可见的自定义工具
func (r *ToolRepository) ListCustomForBot(ctx context.Context, botID string) ([]*model.Tool, error) {
	var tools []*model.Tool
	err := r.db.WithContext(ctx).
		Where("type = ?", ToolTypeCustom).
		Where("created_by_bot_id = ? OR created_by_bot_id IS NULL OR created_by_bot_id = ''", botID).
		Order("created_at DESC").
		Find(&tools).Error
	return tools, err
}

// Update 更新工具
func (r *ToolRepository) Update(ctx context.Context, tool *model.Tool) error {
	return r.db.WithContext(ctx).Save(tool).Error
}

// SetActive 全局启停工具
func (r *ToolRepository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).Model(&model.Tool{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除工具及其 bot 安装记录
func (r *ToolRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.BotTool{}, "tool_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Tool{}, "id = ?", id).Error
	})
}
