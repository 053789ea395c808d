package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashwinyue/next-bot/internal/service/tool"
)

const (
	// DefaultGoHighLevelBaseURL LeadConnector API 地址
	DefaultGoHighLevelBaseURL = "https://services.leadconnectorhq.com"
	// DefaultGoHighLevelVersion API 版本头
	DefaultGoHighLevelVersion = "2021-04-15"
	defaultGoHighLevelRate    = 10
)

// ErrMissingLocation GoHighLevel 需要 calendarId 和 locationId
var ErrMissingLocation = errors.New("gohighlevel requires calendarId and locationId")

// GoHighLevelClient GoHighLevel 日历客户端
type GoHighLevelClient struct {
	http    *http.Client
	baseURL string
	version string
	limiter *rate.Limiter
}

// NewGoHighLevelClient 创建客户端，limiter 为 nil 时不限速
func NewGoHighLevelClient(httpClient *http.Client, baseURL, version string, limiter *rate.Limiter) *GoHighLevelClient {
	if baseURL == "" {
		baseURL = DefaultGoHighLevelBaseURL
	}
	if version == "" {
		version = DefaultGoHighLevelVersion
	}
	return &GoHighLevelClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		limiter: limiter,
	}
}

// NewGoHighLevelClientFactory 所有调用共享同一个限速器
func NewGoHighLevelClientFactory(settings OAuthSettings, baseURL, version string, perSecond float64, base *http.Client, store TokenStore, logger *slog.Logger) ClientFactory {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = defaultGoHighLevelRate
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	return func(ctx context.Context, ec *tool.ExecutionContext) (Client, error) {
		hc, err := authorizedClient(ctx, settings, ec, base, store, logger)
		if err != nil {
			return nil, err
		}
		return NewGoHighLevelClient(hc, baseURL, version, limiter), nil
	}
}

type ghlAppointment struct {
	ID                string `json:"id,omitempty"`
	CalendarID        string `json:"calendarId,omitempty"`
	LocationID        string `json:"locationId,omitempty"`
	ContactID         string `json:"contactId,omitempty"`
	Title             string `json:"title,omitempty"`
	Notes             string `json:"notes,omitempty"`
	StartTime         string `json:"startTime,omitempty"`
	EndTime           string `json:"endTime,omitempty"`
	AppointmentStatus string `json:"appointmentStatus,omitempty"`
}

func (g *GoHighLevelClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return doJSON(ctx, g.http, method, g.baseURL+path, map[string]string{"Version": g.version}, body, out)
}

func requireLocation(cfg *Config) error {
	if cfg.CalendarID == "" || cfg.CalendarID == "primary" || cfg.LocationID == "" {
		return ErrMissingLocation
	}
	return nil
}

func (g *GoHighLevelClient) fromGHL(a *ghlAppointment, cfg *Config) *Event {
	ev := &Event{
		ID:          a.ID,
		CalendarID:  a.CalendarID,
		Title:       a.Title,
		Description: a.Notes,
		TimeZone:    cfg.TimeZone,
		Status:      a.AppointmentStatus,
	}
	if ev.CalendarID == "" {
		ev.CalendarID = cfg.CalendarID
	}
	ev.Start, _ = ParseTime(a.StartTime, cfg.Location())
	ev.End, _ = ParseTime(a.EndTime, cfg.Location())
	return ev
}

// upsertContact 按邮箱或电话合并联系人
func (g *GoHighLevelClient) upsertContact(ctx context.Context, cfg *Config, attendee Attendee) (string, error) {
	body := map[string]interface{}{"locationId": cfg.LocationID}
	if attendee.Name != "" {
		body["name"] = attendee.Name
	}
	if attendee.Email != "" {
		body["email"] = attendee.Email
	}
	if attendee.Phone != "" {
		body["phone"] = attendee.Phone
	}
	var resp struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := g.do(ctx, http.MethodPost, "/contacts/upsert", body, &resp); err != nil {
		return "", fmt.Errorf("failed to upsert contact: %w", err)
	}
	if resp.Contact.ID == "" {
		return "", errors.New("contact upsert returned no id")
	}
	return resp.Contact.ID, nil
}

// CreateEvent 先合并联系人再创建预约
func (g *GoHighLevelClient) CreateEvent(ctx context.Context, cfg *Config, event *Event) (*Event, error) {
	if err := requireLocation(cfg); err != nil {
		return nil, err
	}
	contactID, err := g.upsertContact(ctx, cfg, event.Attendee)
	if err != nil {
		return nil, err
	}

	body := &ghlAppointment{
		CalendarID:        cfg.CalendarID,
		LocationID:        cfg.LocationID,
		ContactID:         contactID,
		Title:             event.Title,
		Notes:             event.Description,
		StartTime:         event.Start.In(cfg.Location()).Format(time.RFC3339),
		EndTime:           event.End.In(cfg.Location()).Format(time.RFC3339),
		AppointmentStatus: "confirmed",
	}
	var created ghlAppointment
	if err := g.do(ctx, http.MethodPost, "/calendars/events/appointments", body, &created); err != nil {
		return nil, err
	}
	out := g.fromGHL(&created, cfg)
	out.Attendee = event.Attendee
	return out, nil
}

// UpdateEvent 修改预约时间
func (g *GoHighLevelClient) UpdateEvent(ctx context.Context, cfg *Config, eventID string, start, end time.Time) (*Event, error) {
	body := &ghlAppointment{
		StartTime: start.In(cfg.Location()).Format(time.RFC3339),
		EndTime:   end.In(cfg.Location()).Format(time.RFC3339),
	}
	var updated ghlAppointment
	if err := g.do(ctx, http.MethodPut, "/calendars/events/appointments/"+url.PathEscape(eventID), body, &updated); err != nil {
		return nil, err
	}
	return g.fromGHL(&updated, cfg), nil
}

// CancelEvent 将预约状态置为 cancelled
func (g *GoHighLevelClient) CancelEvent(ctx context.Context, cfg *Config, eventID string) error {
	body := &ghlAppointment{AppointmentStatus: "cancelled"}
	return g.do(ctx, http.MethodPut, "/calendars/events/appointments/"+url.PathEscape(eventID), body, nil)
}

// ListEvents 列出未取消的预约
func (g *GoHighLevelClient) ListEvents(ctx context.Context, cfg *Config, from, to time.Time) ([]*Event, error) {
	if err := requireLocation(cfg); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("locationId", cfg.LocationID)
	q.Set("calendarId", cfg.CalendarID)
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))

	var resp struct {
		Events []*ghlAppointment `json:"events"`
	}
	if err := g.do(ctx, http.MethodGet, "/calendars/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	events := make([]*Event, 0, len(resp.Events))
	for _, e := range resp.Events {
		if e.AppointmentStatus == "cancelled" {
			continue
		}
		events = append(events, g.fromGHL(e, cfg))
	}
	return events, nil
}

// BusyIntervals 由已有预约推出忙碌区间
func (g *GoHighLevelClient) BusyIntervals(ctx context.Context, cfg *Config, from, to time.Time) ([]Interval, error) {
	events, err := g.ListEvents(ctx, cfg, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(events))
	for _, e := range events {
		if e.Start.IsZero() || e.End.IsZero() {
			continue
		}
		out = append(out, Interval{Start: e.Start, End: e.End})
	}
	return out, nil
}
