package calendar

import (
	"sort"
	"time"
)

// minimumLeadTime 可用时段最早从一小时后开始
const minimumLeadTime = time.Hour

// Interval 半开区间 [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps 是否与另一区间相交
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Slot 可预约时段
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GenerateAvailableSlots 生成 [from, to] 各日期内的可预约时段
// 忙碌区间前后各扩展缓冲时间，时段按配置步长生成
func GenerateAvailableSlots(from, to time.Time, busy []Interval, cfg *Config, now time.Time) []Slot {
	loc := cfg.Location()
	duration := cfg.Duration()
	buffer := cfg.Buffer()
	step := cfg.Interval()
	earliest := now.Add(minimumLeadTime)
	horizon := cfg.Horizon(now)

	expanded := make([]Interval, 0, len(busy))
	for _, b := range busy {
		expanded = append(expanded, Interval{Start: b.Start.Add(-buffer), End: b.End.Add(buffer)})
	}
	sort.Slice(expanded, func(i, j int) bool { return expanded[i].Start.Before(expanded[j].Start) })

	slots := make([]Slot, 0)
	last := startOfDay(to, loc)
	for day := startOfDay(from, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, w := range cfg.windowsFor(day.Weekday()) {
			open, closed := w.on(day, loc)
			for start := open; !start.Add(duration + buffer).After(closed); start = start.Add(step) {
				if start.Before(earliest) || start.After(horizon) {
					continue
				}
				candidate := Interval{Start: start, End: start.Add(duration)}
				if overlapsAny(candidate, expanded) {
					continue
				}
				slots = append(slots, Slot{Start: candidate.Start, End: candidate.End})
			}
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if !b.Start.Before(candidate.End) {
			// 已按开始时间排序，之后的区间都不会相交
			return false
		}
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
