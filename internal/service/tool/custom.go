package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
)

const (
	// CustomFunctionName 自定义工具唯一的函数名
	CustomFunctionName = "execute"

	customToolUserAgent   = "NextBot-CustomTool/1.0"
	defaultCustomTimeout  = 30 * time.Second
	maxCustomResponseSize = 4 << 20
)

// ErrCustomToolNotConfigured 自定义工具缺少服务端地址
var ErrCustomToolNotConfigured = errors.New("custom tool server url is not configured")

// CustomToolFactory 将 tools 表中的自定义工具记录物化为工具定义
type CustomToolFactory struct {
	client         *http.Client
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewCustomToolFactory 创建自定义工具工厂
func NewCustomToolFactory(client *http.Client, defaultTimeout time.Duration) *CustomToolFactory {
	if client == nil {
		client = &http.Client{}
	}
	if defaultTimeout <= 0 {
		defaultTimeout = defaultCustomTimeout
	}
	return &CustomToolFactory{client: client, defaultTimeout: defaultTimeout, now: time.Now}
}

// CreateCustomToolDefinition 从记录构建工具定义
func (f *CustomToolFactory) CreateCustomToolDefinition(row *model.Tool) (*Definition, error) {
	if row == nil {
		return nil, errors.New("custom tool row is nil")
	}

	fnDesc, err := row.ExecuteFunction()
	if err != nil {
		return nil, err
	}
	httpCfg, err := row.HTTPConfig()
	if err != nil {
		return nil, err
	}

	description := row.Description
	var params []*Param
	if fnDesc != nil {
		if fnDesc.Description != "" {
			description = fnDesc.Description
		}
		params = make([]*Param, 0, len(fnDesc.Parameters))
		for _, p := range fnDesc.Parameters {
			params = append(params, &Param{
				Name:        p.Name,
				Kind:        ParseKind(p.Type),
				Description: p.Description,
				Required:    p.Required,
				Enum:        p.Enum,
				Items:       ParseKind(p.ItemsType),
			})
		}
	}

	schema, err := ObjectSchema(params...)
	if err != nil {
		return nil, fmt.Errorf("failed to build parameter schema for %s: %w", row.ID, err)
	}

	return &Definition{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Type:        TypeCustom,
		Functions: map[string]*Function{
			CustomFunctionName: {
				Description: description,
				Parameters:  schema,
				Execute:     f.execute(row.ID, httpCfg, schema),
			},
		},
	}, nil
}

// customToolRequest 发往自定义工具服务端的请求体
type customToolRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
	Context    customToolContext      `json:"context"`
	Metadata   customToolMetadata     `json:"metadata"`
}

type customToolContext struct {
	BotID          string                 `json:"botId"`
	UserID         string                 `json:"userId"`
	OrganizationID string                 `json:"organizationId"`
	ConversationID string                 `json:"conversationId,omitempty"`
	WebhookPayload map[string]interface{} `json:"webhookPayload,omitempty"`
}

type customToolMetadata struct {
	Timestamp string `json:"timestamp"`
}

func (f *CustomToolFactory) execute(toolID string, cfg *model.CustomToolConfigs, schema *Schema) Handler {
	return func(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (*Result, error) {
		if cfg == nil || strings.TrimSpace(cfg.ServerURL) == "" {
			return nil, fmt.Errorf("%w: %s", ErrCustomToolNotConfigured, toolID)
		}
		if err := schema.Validate(params); err != nil {
			return Fail(CodeInvalidParameters, err.Error()), nil
		}
		if params == nil {
			params = map[string]interface{}{}
		}

		payload := customToolRequest{
			Parameters: params,
			Context: customToolContext{
				BotID:          ec.BotID,
				UserID:         ec.UserID,
				OrganizationID: ec.OrganizationID,
				ConversationID: ec.ConversationID,
				WebhookPayload: ec.WebhookPayload,
			},
			Metadata: customToolMetadata{Timestamp: f.now().UTC().Format(time.RFC3339)},
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		timeout := f.defaultTimeout
		if cfg.Timeout > 0 {
			timeout = time.Duration(cfg.Timeout) * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ServerURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", customToolUserAgent)
		if cfg.SecretToken != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.SecretToken)
		}
		// 用户配置的头优先
		for _, h := range cfg.HTTPHeaders {
			if h.Key != "" {
				req.Header.Set(h.Key, h.Value)
			}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("custom tool request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCustomResponseSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read custom tool response: %w", err)
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, fmt.Errorf("custom tool server error: HTTP %d: %s", resp.StatusCode, truncate(string(raw), 512))
		case resp.StatusCode >= http.StatusBadRequest:
			return FailWithDetails(CodeHTTPError,
				fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
				map[string]interface{}{"status": resp.StatusCode, "body": decodeBody(raw)},
			), nil
		}

		return OK(decodeBody(raw)), nil
	}
}

// decodeBody 能解析为 JSON 时返回解析结果，否则返回原始文本
func decodeBody(raw []byte) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
