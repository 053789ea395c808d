package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// 工具 ID
const (
	GoogleToolID      = "google-calendar"
	GoHighLevelToolID = "gohighlevel-calendar"
)

// 函数名
const (
	FuncBookAppointment       = "bookAppointment"
	FuncRescheduleAppointment = "rescheduleAppointment"
	FuncCancelAppointment     = "cancelAppointment"
	FuncListAppointments      = "listAppointments"
	FuncListAvailableSlots    = "listAvailableSlots"
)

// 日历工具错误码
const (
	CodeSlotUnavailable    = "SLOT_UNAVAILABLE"
	CodeBookingFailed      = "BOOKING_FAILED"
	CodeRescheduleFailed   = "RESCHEDULE_FAILED"
	CodeCancellationFailed = "CANCELLATION_FAILED"
	CodeListFailed         = "LIST_FAILED"
	CodeInvalidConfig      = "INVALID_CONFIG"
)

// 默认查询范围
const (
	defaultSlotRange = 7 * 24 * time.Hour
	displayLayout    = "Monday, January 2 at 3:04 PM"
)

// AppointmentStore 本地预约记录
type AppointmentStore interface {
	Upsert(ctx context.Context, a *model.Appointment) error
	GetByExternalID(ctx context.Context, provider, externalID string) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, provider, externalID, status string) error
}

// Spec 日历工具的描述信息
type Spec struct {
	ID           string
	Name         string
	Description  string
	Provider     string
	ConfigSchema *tool.Schema
	Auth         *tool.AuthSpec
}

// Option 工具选项
type Option func(*toolset)

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(t *toolset) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(t *toolset) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSlotInterval 配置未指定 slotInterval 时使用的步长（分钟）
func WithSlotInterval(minutes int) Option {
	return func(t *toolset) {
		if minutes > 0 {
			t.slotInterval = minutes
		}
	}
}

type toolset struct {
	provider     string
	clients      ClientFactory
	store        AppointmentStore
	logger       *slog.Logger
	now          func() time.Time
	slotInterval int
}

var (
	bookParams = tool.MustObjectSchema(
		&tool.Param{Name: "startTime", Kind: tool.KindString, Required: true, Description: "Appointment start time, ISO 8601 (e.g. 2025-01-15T10:00:00). Times without offset use the calendar time zone."},
		&tool.Param{Name: "name", Kind: tool.KindString, Required: true, Description: "Attendee full name"},
		&tool.Param{Name: "email", Kind: tool.KindString, Description: "Attendee email"},
		&tool.Param{Name: "phone", Kind: tool.KindString, Description: "Attendee phone number"},
		&tool.Param{Name: "title", Kind: tool.KindString, Description: "Appointment title"},
		&tool.Param{Name: "notes", Kind: tool.KindString, Description: "Additional notes"},
	)
	rescheduleParams = tool.MustObjectSchema(
		&tool.Param{Name: "appointmentId", Kind: tool.KindString, Required: true, Description: "Id of the appointment to move"},
		&tool.Param{Name: "newStartTime", Kind: tool.KindString, Required: true, Description: "New start time, ISO 8601"},
	)
	cancelParams = tool.MustObjectSchema(
		&tool.Param{Name: "appointmentId", Kind: tool.KindString, Required: true, Description: "Id of the appointment to cancel"},
		&tool.Param{Name: "reason", Kind: tool.KindString, Description: "Cancellation reason"},
	)
	rangeParams = tool.MustObjectSchema(
		&tool.Param{Name: "startDate", Kind: tool.KindString, Description: "Range start, ISO 8601 date or time"},
		&tool.Param{Name: "endDate", Kind: tool.KindString, Description: "Range end, ISO 8601 date or time"},
	)
)

// NewDefinition 创建日历工具定义
func NewDefinition(spec Spec, clients ClientFactory, store AppointmentStore, opts ...Option) *tool.Definition {
	t := &toolset{
		provider: spec.Provider,
		clients:  clients,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if spec.ConfigSchema == nil {
		spec.ConfigSchema = ConfigSchema
	}

	return &tool.Definition{
		ID:              spec.ID,
		Name:            spec.Name,
		Description:     spec.Description,
		Type:            tool.TypeCalendarBooking,
		IntegrationType: spec.Provider,
		ConfigSchema:    spec.ConfigSchema,
		CredentialSchema: tool.MustSchema(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"access_token":  map[string]interface{}{"type": "string"},
				"refresh_token": map[string]interface{}{"type": "string"},
				"api_key":       map[string]interface{}{"type": "string"},
			},
		}),
		DefaultConfig: DefaultConfig(),
		Auth:          spec.Auth,
		Functions: map[string]*tool.Function{
			FuncBookAppointment: {
				Description: "Book an appointment in an available time slot",
				Parameters:  bookParams,
				Execute:     t.book,
				Exclusive:   true,
			},
			FuncRescheduleAppointment: {
				Description: "Move an existing appointment to a new time",
				Parameters:  rescheduleParams,
				Execute:     t.reschedule,
				Exclusive:   true,
			},
			FuncCancelAppointment: {
				Description: "Cancel an existing appointment",
				Parameters:  cancelParams,
				Execute:     t.cancel,
			},
			FuncListAppointments: {
				Description: "List upcoming appointments",
				Parameters:  rangeParams,
				Execute:     t.listAppointments,
			},
			FuncListAvailableSlots: {
				Description: "List open time slots that can be booked",
				Parameters:  rangeParams,
				Execute:     t.listSlots,
			},
		},
	}
}

// NewGoogleDefinition Google Calendar 工具
func NewGoogleDefinition(clients ClientFactory, store AppointmentStore, opts ...Option) *tool.Definition {
	return NewDefinition(Spec{
		ID:          GoogleToolID,
		Name:        "Google Calendar",
		Description: "Book, reschedule and cancel appointments in Google Calendar",
		Provider:    model.ProviderGoogle,
		Auth: &tool.AuthSpec{
			Required:         true,
			Provider:         model.ProviderGoogle,
			Scopes:           GoogleScopes,
			ConnectAction:    "connect_google_calendar",
			DisconnectAction: "disconnect_google_calendar",
		},
	}, clients, store, opts...)
}

// NewGoHighLevelDefinition GoHighLevel 日历工具
func NewGoHighLevelDefinition(clients ClientFactory, store AppointmentStore, opts ...Option) *tool.Definition {
	return NewDefinition(Spec{
		ID:           GoHighLevelToolID,
		Name:         "GoHighLevel Calendar",
		Description:  "Book, reschedule and cancel appointments in a GoHighLevel calendar",
		Provider:     model.ProviderGoHighLevel,
		ConfigSchema: GoHighLevelConfigSchema,
		Auth: &tool.AuthSpec{
			Required:         true,
			Provider:         model.ProviderGoHighLevel,
			ConnectAction:    "connect_gohighlevel",
			DisconnectAction: "disconnect_gohighlevel",
		},
	}, clients, store, opts...)
}

// prepare 校验参数，解析配置并创建客户端
func (t *toolset) prepare(ctx context.Context, schema *tool.Schema, params map[string]interface{}, ec *tool.ExecutionContext) (*Config, Client, *tool.Result) {
	if err := schema.Validate(params); err != nil {
		return nil, nil, tool.Fail(tool.CodeInvalidParameters, err.Error())
	}
	raw := ec.Config
	if _, ok := raw["slotInterval"]; !ok && t.slotInterval > 0 {
		raw = make(map[string]interface{}, len(ec.Config)+1)
		for k, v := range ec.Config {
			raw[k] = v
		}
		raw["slotInterval"] = t.slotInterval
	}
	cfg, err := DecodeConfig(raw)
	if err != nil {
		return nil, nil, tool.Fail(CodeInvalidConfig, err.Error())
	}
	client, err := t.clients(ctx, ec)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return nil, nil, tool.Fail(tool.CodeAuthRequired, "Calendar is not connected")
		}
		return nil, nil, tool.Fail(tool.CodeAuthRequired, err.Error())
	}
	return cfg, client, nil
}

func (t *toolset) book(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	cfg, client, fail := t.prepare(ctx, bookParams, params, ec)
	if fail != nil {
		return fail, nil
	}

	start, err := ParseTime(stringParam(params, "startTime"), cfg.Location())
	if err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	now := t.now()
	if verr := ValidateAppointmentTime(start, cfg, now); verr != nil {
		return &tool.Result{Error: verr}, nil
	}
	end := start.Add(cfg.Duration())

	busy, err := client.BusyIntervals(ctx, cfg, start.Add(-cfg.Buffer()), end.Add(cfg.Buffer()))
	if err != nil {
		t.logger.Error("failed to check calendar availability", "provider", t.provider, "bot_id", ec.BotID, "error", err)
		return tool.Fail(CodeBookingFailed, fmt.Sprintf("Failed to check availability: %v", err)), nil
	}
	if conflicts(Interval{Start: start, End: end}, busy, cfg.Buffer(), nil) {
		return tool.Fail(CodeSlotUnavailable, "The requested time is no longer available"), nil
	}

	name := stringParam(params, "name")
	title := stringParam(params, "title")
	if title == "" {
		title = cfg.AppointmentTitle
	}
	if title == "" {
		title = "Appointment with " + name
	}
	event, err := client.CreateEvent(ctx, cfg, &Event{
		Title:       title,
		Description: stringParam(params, "notes"),
		Start:       start,
		End:         end,
		TimeZone:    cfg.TimeZone,
		Attendee: Attendee{
			Name:  name,
			Email: stringParam(params, "email"),
			Phone: stringParam(params, "phone"),
		},
	})
	if err != nil {
		t.logger.Error("failed to book appointment", "provider", t.provider, "bot_id", ec.BotID, "error", err)
		return tool.Fail(CodeBookingFailed, fmt.Sprintf("Failed to book appointment: %v", err)), nil
	}
	if event.Start.IsZero() {
		event.Start, event.End = start, end
	}
	if event.Title == "" {
		event.Title = title
	}

	t.save(ctx, ec, cfg, event, model.AppointmentConfirmed)
	t.logger.Info("appointment booked", "provider", t.provider, "bot_id", ec.BotID, "event_id", event.ID)

	return tool.OKWithMessage(eventData(event, cfg), fmt.Sprintf("Appointment booked for %s (%s)", event.Start.In(cfg.Location()).Format(displayLayout), cfg.TimeZone)), nil
}

func (t *toolset) reschedule(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	cfg, client, fail := t.prepare(ctx, rescheduleParams, params, ec)
	if fail != nil {
		return fail, nil
	}

	eventID := stringParam(params, "appointmentId")
	start, err := ParseTime(stringParam(params, "newStartTime"), cfg.Location())
	if err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	if verr := ValidateAppointmentTime(start, cfg, t.now()); verr != nil {
		return &tool.Result{Error: verr}, nil
	}
	end := start.Add(cfg.Duration())

	existing := t.load(ctx, eventID)
	var self *Interval
	if existing != nil {
		self = &Interval{Start: existing.StartTime, End: existing.EndTime}
	}
	busy, err := client.BusyIntervals(ctx, cfg, start.Add(-cfg.Buffer()), end.Add(cfg.Buffer()))
	if err != nil {
		t.logger.Error("failed to check calendar availability", "provider", t.provider, "bot_id", ec.BotID, "error", err)
		return tool.Fail(CodeRescheduleFailed, fmt.Sprintf("Failed to check availability: %v", err)), nil
	}
	if conflicts(Interval{Start: start, End: end}, busy, cfg.Buffer(), self) {
		return tool.Fail(CodeSlotUnavailable, "The requested time is no longer available"), nil
	}

	event, err := client.UpdateEvent(ctx, cfg, eventID, start, end)
	if err != nil {
		t.logger.Error("failed to reschedule appointment", "provider", t.provider, "event_id", eventID, "error", err)
		return tool.Fail(CodeRescheduleFailed, fmt.Sprintf("Failed to reschedule appointment: %v", err)), nil
	}
	if event.ID == "" {
		event.ID = eventID
	}
	if event.Start.IsZero() {
		event.Start, event.End = start, end
	}

	if existing != nil {
		row := *existing
		row.ID = ""
		row.StartTime, row.EndTime = event.Start, event.End
		row.Status = model.AppointmentRescheduled
		tool.NonCritical(ctx, t.logger, "save_appointment", func(ctx context.Context) error {
			return t.store.Upsert(ctx, &row)
		})
		if event.Title == "" {
			event.Title = existing.Title
		}
	} else {
		t.save(ctx, ec, cfg, event, model.AppointmentRescheduled)
	}

	return tool.OKWithMessage(eventData(event, cfg), fmt.Sprintf("Appointment moved to %s (%s)", event.Start.In(cfg.Location()).Format(displayLayout), cfg.TimeZone)), nil
}

func (t *toolset) cancel(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	cfg, client, fail := t.prepare(ctx, cancelParams, params, ec)
	if fail != nil {
		return fail, nil
	}

	eventID := stringParam(params, "appointmentId")
	if err := client.CancelEvent(ctx, cfg, eventID); err != nil {
		t.logger.Error("failed to cancel appointment", "provider", t.provider, "event_id", eventID, "error", err)
		return tool.Fail(CodeCancellationFailed, fmt.Sprintf("Failed to cancel appointment: %v", err)), nil
	}

	if t.store != nil {
		tool.NonCritical(ctx, t.logger, "cancel_appointment", func(ctx context.Context) error {
			return t.store.UpdateStatus(ctx, t.provider, eventID, model.AppointmentCancelled)
		})
	}
	return tool.OKWithMessage(map[string]interface{}{
		"appointmentId": eventID,
		"status":        model.AppointmentCancelled,
		"reason":        stringParam(params, "reason"),
	}, "Appointment cancelled"), nil
}

func (t *toolset) listAppointments(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	cfg, client, fail := t.prepare(ctx, rangeParams, params, ec)
	if fail != nil {
		return fail, nil
	}
	now := t.now()
	from, to, err := parseRange(params, cfg, now, cfg.Horizon(now))
	if err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}

	events, err := client.ListEvents(ctx, cfg, from, to)
	if err != nil {
		t.logger.Error("failed to list appointments", "provider", t.provider, "bot_id", ec.BotID, "error", err)
		return tool.Fail(CodeListFailed, fmt.Sprintf("Failed to list appointments: %v", err)), nil
	}
	items := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		items = append(items, eventData(e, cfg))
	}
	return tool.OK(map[string]interface{}{
		"appointments": items,
		"count":        len(items),
		"timeZone":     cfg.TimeZone,
	}), nil
}

func (t *toolset) listSlots(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	cfg, client, fail := t.prepare(ctx, rangeParams, params, ec)
	if fail != nil {
		return fail, nil
	}
	now := t.now()
	defaultEnd := now.Add(defaultSlotRange)
	if horizon := cfg.Horizon(now); defaultEnd.After(horizon) {
		defaultEnd = horizon
	}
	from, to, err := parseRange(params, cfg, now, defaultEnd)
	if err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}

	busy, err := client.BusyIntervals(ctx, cfg, startOfDay(from, cfg.Location()), startOfDay(to, cfg.Location()).AddDate(0, 0, 1))
	if err != nil {
		t.logger.Error("failed to load busy intervals", "provider", t.provider, "bot_id", ec.BotID, "error", err)
		return tool.Fail(CodeListFailed, fmt.Sprintf("Failed to list available slots: %v", err)), nil
	}

	slots := GenerateAvailableSlots(from, to, busy, cfg, now)
	items := make([]map[string]interface{}, 0, len(slots))
	for _, s := range slots {
		items = append(items, map[string]interface{}{
			"startTime": s.Start.In(cfg.Location()).Format(time.RFC3339),
			"endTime":   s.End.In(cfg.Location()).Format(time.RFC3339),
		})
	}
	return tool.OK(map[string]interface{}{
		"slots":    items,
		"count":    len(items),
		"timeZone": cfg.TimeZone,
	}), nil
}

// save 尽力写入本地预约记录
func (t *toolset) save(ctx context.Context, ec *tool.ExecutionContext, cfg *Config, event *Event, status string) {
	if t.store == nil || event.ID == "" {
		return
	}
	row := &model.Appointment{
		BotID:           ec.BotID,
		ConversationID:  ec.ConversationID,
		Provider:        t.provider,
		ExternalEventID: event.ID,
		CalendarID:      cfg.CalendarID,
		Title:           event.Title,
		Description:     event.Description,
		StartTime:       event.Start,
		EndTime:         event.End,
		TimeZone:        cfg.TimeZone,
		AttendeeName:    event.Attendee.Name,
		AttendeeEmail:   event.Attendee.Email,
		AttendeePhone:   event.Attendee.Phone,
		Status:          status,
	}
	tool.NonCritical(ctx, t.logger, "save_appointment", func(ctx context.Context) error {
		return t.store.Upsert(ctx, row)
	})
}

func (t *toolset) load(ctx context.Context, eventID string) *model.Appointment {
	if t.store == nil {
		return nil
	}
	row, err := t.store.GetByExternalID(ctx, t.provider, eventID)
	if err != nil {
		return nil
	}
	return row
}

// conflicts 判断候选时段是否与忙碌区间冲突，self 为正在改期的原预约
func conflicts(candidate Interval, busy []Interval, buffer time.Duration, self *Interval) bool {
	for _, b := range busy {
		if self != nil && b.Start.Equal(self.Start) && b.End.Equal(self.End) {
			continue
		}
		expanded := Interval{Start: b.Start.Add(-buffer), End: b.End.Add(buffer)}
		if candidate.Overlaps(expanded) {
			return true
		}
	}
	return false
}

func parseRange(params map[string]interface{}, cfg *Config, defaultFrom, defaultTo time.Time) (time.Time, time.Time, error) {
	from, to := defaultFrom, defaultTo
	if s := stringParam(params, "startDate"); s != "" {
		v, err := ParseTime(s, cfg.Location())
		if err != nil {
			return from, to, err
		}
		from = v
	}
	if s := stringParam(params, "endDate"); s != "" {
		v, err := ParseTime(s, cfg.Location())
		if err != nil {
			return from, to, err
		}
		to = v
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("endDate must not be before startDate")
	}
	return from, to, nil
}

func eventData(e *Event, cfg *Config) map[string]interface{} {
	data := map[string]interface{}{
		"appointmentId": e.ID,
		"title":         e.Title,
		"startTime":     e.Start.In(cfg.Location()).Format(time.RFC3339),
		"endTime":       e.End.In(cfg.Location()).Format(time.RFC3339),
		"timeZone":      cfg.TimeZone,
	}
	if e.Status != "" {
		data["status"] = e.Status
	}
	if e.Link != "" {
		data["link"] = e.Link
	}
	return data
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}
