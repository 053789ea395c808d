package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetricRepository 工具使用指标与错误日志数据访问
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository 创建指标仓库
func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// IncrementUsage 累加 (tool, bot, function) 的使用次数
func (r *MetricRepository) IncrementUsage(ctx context.Context, toolID, botID, functionName string, at time.Time) error {
	m := &model.ToolUsageMetric{
		ID:           uuid.New().String(),
		ToolID:       toolID,
		BotID:        botID,
		FunctionName: functionName,
		UsageCount:   1,
		LastUsedAt:   at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tool_id"}, {Name: "bot_id"}, {Name: "function_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"usage_count":  gorm.Expr("tool_usage_metrics.usage_count + 1"),
			"last_used_at": at,
			"updated_at":   at,
		}),
	}).Create(m).Error
}

// GetUsage 获取使用指标
func (r *MetricRepository) GetUsage(ctx context.Context, toolID, botID, functionName string) (*model.ToolUsageMetric, error) {
	var m model.ToolUsageMetric
	err := r.db.WithContext(ctx).
		Where("tool_id = ? AND bot_id = ? AND function_name = ?", toolID, botID, functionName).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// CreateExecutionError 记录工具执行错误
func (r *MetricRepository) CreateExecutionError(ctx context.Context, e *model.ToolExecutionError) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListExecutionErrors 列出工具的执行错误
func (r *MetricRepository) ListExecutionErrors(ctx context.Context, toolID string, limit int) ([]*model.ToolExecutionError, error) {
	var list []*model.ToolExecutionError
	err := r.db.WithContext(ctx).Where("tool_id = ?", toolID).
		Order("created_at DESC").Limit(limit).
		Find(&list).Error
	return list, err
}
