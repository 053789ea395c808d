package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// 预约时间校验错误码
const (
	CodeStartTimeInPast           = "START_TIME_IN_PAST"
	CodeDayNotAvailable           = "DAY_NOT_AVAILABLE"
	CodeOutsideAvailableHours     = "OUTSIDE_AVAILABLE_HOURS"
	CodeOutsideAvailabilityWindow = "OUTSIDE_AVAILABILITY_WINDOW"
)

// ValidateAppointmentTime 校验预约开始时间，通过时返回 nil
// 结束时间按时长加缓冲计算，必须落在当天某个可预约时段内
func ValidateAppointmentTime(start time.Time, cfg *Config, now time.Time) *tool.Error {
	if start.Before(now) {
		return &tool.Error{Code: CodeStartTimeInPast, Message: "Cannot book an appointment in the past"}
	}

	loc := cfg.Location()
	local := start.In(loc)
	windows := cfg.windowsFor(local.Weekday())
	if len(windows) == 0 {
		return &tool.Error{
			Code:    CodeDayNotAvailable,
			Message: fmt.Sprintf("No availability on %s", local.Weekday()),
		}
	}

	end := start.Add(cfg.Duration() + cfg.Buffer())
	fits := false
	labels := make([]string, 0, len(windows))
	for _, w := range windows {
		open, closed := w.on(local, loc)
		if !start.Before(open) && !end.After(closed) {
			fits = true
			break
		}
		labels = append(labels, w.label)
	}
	if !fits {
		return &tool.Error{
			Code:    CodeOutsideAvailableHours,
			Message: fmt.Sprintf("Appointments on %s must be within %s (%s)", local.Weekday(), strings.Join(labels, ", "), loc),
		}
	}

	if start.After(cfg.Horizon(now)) {
		return &tool.Error{
			Code:    CodeOutsideAvailabilityWindow,
			Message: fmt.Sprintf("Appointments can only be booked up to %d days in advance", cfg.AvailabilityWindow),
		}
	}
	return nil
}
