package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// maxErrorBody 错误响应体最多保留的字节数
const maxErrorBody = 2048

// ErrNoCredentials 执行上下文中没有凭证
var ErrNoCredentials = errors.New("calendar credentials are missing")

// Attendee 参会人
type Attendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Event 外部日历中的事件
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendarId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"startTime"`
	End         time.Time `json:"endTime"`
	TimeZone    string    `json:"timeZone,omitempty"`
	Attendee    Attendee  `json:"attendee,omitempty"`
	Status      string    `json:"status,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// Client 日历服务商接口
type Client interface {
	CreateEvent(ctx context.Context, cfg *Config, event *Event) (*Event, error)
	UpdateEvent(ctx context.Context, cfg *Config, eventID string, start, end time.Time) (*Event, error)
	CancelEvent(ctx context.Context, cfg *Config, eventID string) error
	ListEvents(ctx context.Context, cfg *Config, from, to time.Time) ([]*Event, error)
	BusyIntervals(ctx context.Context, cfg *Config, from, to time.Time) ([]Interval, error)
}

// ClientFactory 根据执行上下文中的凭证创建客户端
type ClientFactory func(ctx context.Context, ec *tool.ExecutionContext) (Client, error)

// APIError 服务商返回的非 2xx 响应
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api returned HTTP %d: %s", e.Status, e.Body)
}

// doJSON 发送 JSON 请求并解析响应，out 为 nil 时丢弃响应体
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return nil
}
