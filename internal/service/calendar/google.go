package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// DefaultGoogleBaseURL Google Calendar v3 地址
const DefaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleScopes 预约所需的授权范围
var GoogleScopes = []string{"https://www.googleapis.com/auth/calendar.events", "https://www.googleapis.com/auth/calendar.readonly"}

// GoogleClient Google Calendar REST 客户端
type GoogleClient struct {
	http    *http.Client
	baseURL string
}

// NewGoogleClient 创建客户端，httpClient 需已附带授权
func NewGoogleClient(httpClient *http.Client, baseURL string) *GoogleClient {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	return &GoogleClient{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewGoogleClientFactory 每次调用时用调用方凭证创建客户端
func NewGoogleClientFactory(settings OAuthSettings, baseURL string, base *http.Client, store TokenStore, logger *slog.Logger) ClientFactory {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Scopes == nil {
		settings.Scopes = GoogleScopes
	}
	return func(ctx context.Context, ec *tool.ExecutionContext) (Client, error) {
		hc, err := authorizedClient(ctx, settings, ec, base, store, logger)
		if err != nil {
			return nil, err
		}
		return NewGoogleClient(hc, baseURL), nil
	}
}

type googleTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type googleEvent struct {
	ID          string           `json:"id,omitempty"`
	Status      string           `json:"status,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	HTMLLink    string           `json:"htmlLink,omitempty"`
	Start       *googleTime      `json:"start,omitempty"`
	End         *googleTime      `json:"end,omitempty"`
	Attendees   []googleAttendee `json:"attendees,omitempty"`
}

func (g *GoogleClient) eventsURL(calendarID string) string {
	return fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(calendarID))
}

func toGoogleTime(t time.Time, cfg *Config) *googleTime {
	return &googleTime{DateTime: t.In(cfg.Location()).Format(time.RFC3339), TimeZone: cfg.TimeZone}
}

func (g *GoogleClient) fromGoogle(ev *googleEvent, cfg *Config) *Event {
	out := &Event{
		ID:          ev.ID,
		CalendarID:  cfg.CalendarID,
		Title:       ev.Summary,
		Description: ev.Description,
		TimeZone:    cfg.TimeZone,
		Status:      ev.Status,
		Link:        ev.HTMLLink,
	}
	out.Start = parseGoogleTime(ev.Start, cfg.Location())
	out.End = parseGoogleTime(ev.End, cfg.Location())
	if len(ev.Attendees) > 0 {
		out.Attendee = Attendee{Name: ev.Attendees[0].DisplayName, Email: ev.Attendees[0].Email}
	}
	return out
}

func parseGoogleTime(t *googleTime, loc *time.Location) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v
		}
	}
	if t.Date != "" {
		if v, err := time.ParseInLocation("2006-01-02", t.Date, loc); err == nil {
			return v
		}
	}
	return time.Time{}
}

// CreateEvent 创建事件并通知参会人
func (g *GoogleClient) CreateEvent(ctx context.Context, cfg *Config, event *Event) (*Event, error) {
	body := &googleEvent{
		Summary:     event.Title,
		Description: event.Description,
		Start:       toGoogleTime(event.Start, cfg),
		End:         toGoogleTime(event.End, cfg),
	}
	if event.Attendee.Email != "" {
		body.Attendees = []googleAttendee{{Email: event.Attendee.Email, DisplayName: event.Attendee.Name}}
	}

	var created googleEvent
	if err := doJSON(ctx, g.http, http.MethodPost, g.eventsURL(cfg.CalendarID)+"?sendUpdates=all", nil, body, &created); err != nil {
		return nil, err
	}
	out := g.fromGoogle(&created, cfg)
	if out.Attendee.Phone == "" {
		out.Attendee.Phone = event.Attendee.Phone
	}
	return out, nil
}

// UpdateEvent 修改事件时间
func (g *GoogleClient) UpdateEvent(ctx context.Context, cfg *Config, eventID string, start, end time.Time) (*Event, error) {
	body := &googleEvent{Start: toGoogleTime(start, cfg), End: toGoogleTime(end, cfg)}
	var updated googleEvent
	u := g.eventsURL(cfg.CalendarID) + "/" + url.PathEscape(eventID) + "?sendUpdates=all"
	if err := doJSON(ctx, g.http, http.MethodPatch, u, nil, body, &updated); err != nil {
		return nil, err
	}
	return g.fromGoogle(&updated, cfg), nil
}

// CancelEvent 删除事件，已删除的事件视为成功
func (g *GoogleClient) CancelEvent(ctx context.Context, cfg *Config, eventID string) error {
	u := g.eventsURL(cfg.CalendarID) + "/" + url.PathEscape(eventID) + "?sendUpdates=all"
	err := doJSON(ctx, g.http, http.MethodDelete, u, nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusGone {
		return nil
	}
	return err
}

// ListEvents 列出时间范围内未取消的事件
func (g *GoogleClient) ListEvents(ctx context.Context, cfg *Config, from, to time.Time) ([]*Event, error) {
	q := url.Values{}
	q.Set("timeMin", from.UTC().Format(time.RFC3339))
	q.Set("timeMax", to.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("timeZone", cfg.TimeZone)

	var resp struct {
		Items []*googleEvent `json:"items"`
	}
	if err := doJSON(ctx, g.http, http.MethodGet, g.eventsURL(cfg.CalendarID)+"?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, g.fromGoogle(item, cfg))
	}
	return events, nil
}

// BusyIntervals 查询忙碌区间
func (g *GoogleClient) BusyIntervals(ctx context.Context, cfg *Config, from, to time.Time) ([]Interval, error) {
	body := map[string]interface{}{
		"timeMin":  from.UTC().Format(time.RFC3339),
		"timeMax":  to.UTC().Format(time.RFC3339),
		"timeZone": cfg.TimeZone,
		"items":    []map[string]string{{"id": cfg.CalendarID}},
	}
	var resp struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"calendars"`
	}
	if err := doJSON(ctx, g.http, http.MethodPost, g.baseURL+"/freeBusy", nil, body, &resp); err != nil {
		return nil, err
	}

	cal, ok := resp.Calendars[cfg.CalendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freeBusy failed for calendar %s: %s", cfg.CalendarID, cal.Errors[0].Reason)
	}
	out := make([]Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		out = append(out, Interval{Start: b.Start, End: b.End})
	}
	return out, nil
}
