package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashwinyue/next-bot/internal/service/tool"
)

const (
	defaultDuration     = 30
	defaultWindowDays   = 30
	defaultSlotInterval = 30
	defaultTimeZone     = "UTC"
)

// TimeSlot 某一天的可预约时段
type TimeSlot struct {
	Day   string `json:"day"`
	Start string `json:"startTime"`
	End   string `json:"endTime"`
}

// Config 日历工具配置
type Config struct {
	CalendarID          string     `json:"calendarId"`
	LocationID          string     `json:"locationId"`
	AppointmentDuration int        `json:"appointmentDuration"` // 分钟
	BufferTime          int        `json:"bufferTime"`          // 分钟
	AvailabilityWindow  int        `json:"availabilityWindow"`  // 天
	TimeZone            string     `json:"timeZone"`
	AvailableTimeSlots  []TimeSlot `json:"availableTimeSlots"`
	SlotInterval        int        `json:"slotInterval"` // 分钟
	AppointmentTitle    string     `json:"appointmentTitle"`

	loc     *time.Location
	windows map[time.Weekday][]window
}

type window struct {
	start, end time.Duration // 距零点的墙上时间
	label      string
}

// on 返回窗口在 day 当天的起止时刻，跨夏令时切换时仍按墙上时间
func (w window) on(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, int(w.start/time.Minute), 0, 0, loc),
		time.Date(y, m, d, 0, int(w.end/time.Minute), 0, 0, loc)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func defaultSlots() []TimeSlot {
	slots := make([]TimeSlot, 0, 5)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		slots = append(slots, TimeSlot{Day: day, Start: "09:00", End: "17:00"})
	}
	return slots
}

// DefaultConfig 工作日 9 点到 17 点，30 分钟一次
func DefaultConfig() map[string]interface{} {
	slots := make([]interface{}, 0, 5)
	for _, s := range defaultSlots() {
		slots = append(slots, map[string]interface{}{"day": s.Day, "startTime": s.Start, "endTime": s.End})
	}
	return map[string]interface{}{
		"calendarId":          "primary",
		"appointmentDuration": defaultDuration,
		"bufferTime":          0,
		"availabilityWindow":  defaultWindowDays,
		"timeZone":            defaultTimeZone,
		"availableTimeSlots":  slots,
	}
}

// ConfigSchema 配置校验
var ConfigSchema = tool.MustSchema(configDocument())

// GoHighLevelConfigSchema GoHighLevel 额外要求 calendarId 和 locationId
var GoHighLevelConfigSchema = tool.MustSchema(func() map[string]interface{} {
	doc := configDocument()
	doc["required"] = []interface{}{"calendarId", "locationId"}
	return doc
}())

func configDocument() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"calendarId":          map[string]interface{}{"type": "string"},
			"locationId":          map[string]interface{}{"type": "string"},
			"appointmentDuration": map[string]interface{}{"type": "integer", "minimum": 5, "maximum": 480},
			"bufferTime":          map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 240},
			"availabilityWindow":  map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 365},
			"timeZone":            map[string]interface{}{"type": "string"},
			"slotInterval":        map[string]interface{}{"type": "integer", "minimum": 5, "maximum": 240},
			"appointmentTitle":    map[string]interface{}{"type": "string"},
			"availableTimeSlots": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"day", "startTime", "endTime"},
					"properties": map[string]interface{}{
						"day": map[string]interface{}{
							"type": "string",
							"enum": []interface{}{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"},
						},
						"startTime": map[string]interface{}{"type": "string", "pattern": `^\d{2}:\d{2}$`},
						"endTime":   map[string]interface{}{"type": "string", "pattern": `^\d{2}:\d{2}$`},
					},
				},
			},
		},
	}
}

// DecodeConfig 解析配置，缺省字段使用默认值
func DecodeConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := tool.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid calendar config: %w", err)
	}
	if cfg.AppointmentDuration <= 0 {
		cfg.AppointmentDuration = defaultDuration
	}
	if cfg.BufferTime < 0 {
		cfg.BufferTime = 0
	}
	if cfg.AvailabilityWindow <= 0 {
		cfg.AvailabilityWindow = defaultWindowDays
	}
	if cfg.SlotInterval <= 0 {
		cfg.SlotInterval = defaultSlotInterval
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = defaultTimeZone
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
	}
	cfg.loc = loc

	if cfg.AvailableTimeSlots == nil {
		cfg.AvailableTimeSlots = defaultSlots()
	}

	cfg.windows = make(map[time.Weekday][]window)
	for _, slot := range cfg.AvailableTimeSlots {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(slot.Day))]
		if !ok {
			return nil, fmt.Errorf("invalid day %q", slot.Day)
		}
		start, err := parseClock(slot.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(slot.End)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("time slot %s %s-%s ends before it starts", slot.Day, slot.Start, slot.End)
		}
		cfg.windows[day] = append(cfg.windows[day], window{start: start, end: end, label: slot.Start + "-" + slot.End})
	}
	return &cfg, nil
}

// Location 配置的时区
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Duration 预约时长
func (c *Config) Duration() time.Duration {
	return time.Duration(c.AppointmentDuration) * time.Minute
}

// Buffer 预约前后的缓冲时间
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.BufferTime) * time.Minute
}

// Interval 可用时段步长
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SlotInterval) * time.Minute
}

// Horizon 最远可预约时间
func (c *Config) Horizon(now time.Time) time.Time {
	return now.AddDate(0, 0, c.AvailabilityWindow)
}

func (c *Config) windowsFor(day time.Weekday) []window {
	return c.windows[day]
}

// parseClock 解析 HH:MM
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// ParseTime 解析时间，不带时区的时间按配置的时区解释
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// startOfDay 当天零点
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
