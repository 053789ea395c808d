package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 预约状态
const (
	AppointmentConfirmed   = "confirmed"
	AppointmentRescheduled = "rescheduled"
	AppointmentCancelled   = "cancelled"
)

// Appointment 本地预约记录，外部日历才是权威数据
type Appointment struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotID           string    `json:"bot_id" gorm:"type:varchar(36);not null;index"`
	ConversationID  string    `json:"conversation_id,omitempty" gorm:"type:varchar(36);index"`
	Provider        string    `json:"provider" gorm:"type:varchar(50);not null;uniqueIndex:idx_appointment_external"`
	ExternalEventID string    `json:"external_event_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_appointment_external"`
	CalendarID      string    `json:"calendar_id,omitempty" gorm:"type:varchar(255)"`
	Title           string    `json:"title" gorm:"type:varchar(255)"`
	Description     string    `json:"description,omitempty" gorm:"type:text"`
	StartTime       time.Time `json:"start_time" gorm:"index"`
	EndTime         time.Time `json:"end_time"`
	TimeZone        string    `json:"time_zone" gorm:"type:varchar(64)"`
	AttendeeName    string    `json:"attendee_name,omitempty" gorm:"type:varchar(255)"`
	AttendeeEmail   string    `json:"attendee_email,omitempty" gorm:"type:varchar(255)"`
	AttendeePhone   string    `json:"attendee_phone,omitempty" gorm:"type:varchar(64)"`
	Status          string    `json:"status" gorm:"type:varchar(20);index"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Appointment) TableName() string {
	return "appointments"
}
