package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppointmentRepository 预约数据访问
type AppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository 创建预约仓库
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Upsert 按 (provider, external_event_id) 写入或更新预约
func (r *AppointmentRepository) Upsert(ctx context.Context, a *model.Appointment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "external_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "start_time", "end_time", "time_zone",
			"attendee_name", "attendee_email", "attendee_phone", "status", "updated_at",
		}),
	}).Create(a).Error
}

// GetByExternalID 按外部事件 ID 获取预约
func (r *AppointmentRepository) GetByExternalID(ctx context.Context, provider, externalID string) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_event_id = ?", provider, externalID).
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// UpdateStatus 更新预约状态
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, provider, externalID, status string) error {
	return r.db.WithContext(ctx).Model(&model.Appointment{}).
		Where("provider = ? AND external_event_id = ?", provider, externalID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

// ListByBot 列出时间范围内 bot 的预约
func (r *AppointmentRepository) ListByBot(ctx context.Context, botID string, from, to time.Time) ([]*model.Appointment, error) {
	var list []*model.Appointment
	err := r.db.WithContext(ctx).
		Where("bot_id = ? AND start_time >= ? AND start_time < ?", botID, from, to).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}
