// Package lead 提供线索收集工具
package lead

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// ToolID 线索收集工具 ID
const ToolID = "lead-capture"

// 函数名
const (
	FuncDetectTrigger      = "detectTrigger"
	FuncRequestInformation = "requestInformation"
	FuncSaveLead           = "saveLead"
)

// CodeMissingRequiredFields 缺少必填字段
const CodeMissingRequiredFields = "MISSING_REQUIRED_FIELDS"

// 标准字段，其余字段存入 Fields
var standardFields = []string{"name", "email", "phone", "company"}

// Store 线索存储
type Store interface {
	Create(ctx context.Context, lead *model.Lead) error
}

// Config 线索工具配置
type Config struct {
	TriggerKeywords []string `json:"triggerKeywords"`
	RequiredFields  []string `json:"requiredFields"`
	PromptMessage   string   `json:"promptMessage"`
	SuccessMessage  string   `json:"successMessage"`
}

// DefaultConfig 默认配置
func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"triggerKeywords": []interface{}{"contact", "quote", "pricing", "demo", "call me", "get in touch"},
		"requiredFields":  []interface{}{"name", "email"},
		"promptMessage":   "I'd be happy to help. Could you share your contact details so our team can follow up?",
		"successMessage":  "Thanks! Your information has been saved and someone will be in touch soon.",
	}
}

var configSchema = tool.MustSchema(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"triggerKeywords": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"requiredFields":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"promptMessage":   map[string]interface{}{"type": "string"},
		"successMessage":  map[string]interface{}{"type": "string"},
	},
})

var (
	messageParams = tool.MustObjectSchema(
		&tool.Param{Name: "message", Kind: tool.KindString, Required: true, Description: "The latest user message"},
	)
	requestParams = tool.MustObjectSchema(
		&tool.Param{Name: "collected", Kind: tool.KindObject, Description: "Fields already collected from the user"},
	)
	saveParams = tool.MustObjectSchema(
		&tool.Param{Name: "name", Kind: tool.KindString, Description: "Full name"},
		&tool.Param{Name: "email", Kind: tool.KindString, Description: "Email address"},
		&tool.Param{Name: "phone", Kind: tool.KindString, Description: "Phone number"},
		&tool.Param{Name: "company", Kind: tool.KindString, Description: "Company name"},
		&tool.Param{Name: "fields", Kind: tool.KindObject, Description: "Any other collected fields, also accepted as top-level arguments"},
	)
)

type capture struct {
	store  Store
	logger *slog.Logger
}

// NewDefinition 创建线索收集工具
func NewDefinition(store Store, logger *slog.Logger) *tool.Definition {
	if logger == nil {
		logger = slog.Default()
	}
	c := &capture{store: store, logger: logger}
	return &tool.Definition{
		ID:            ToolID,
		Name:          "Lead Capture",
		Description:   "Collect contact details from interested visitors",
		Type:          tool.TypeContactForm,
		ConfigSchema:  configSchema,
		DefaultConfig: DefaultConfig(),
		Functions: map[string]*tool.Function{
			FuncDetectTrigger: {
				Description: "Check whether the user message shows interest in being contacted",
				Parameters:  messageParams,
				Execute:     c.detectTrigger,
			},
			FuncRequestInformation: {
				Description: "Get the prompt and the fields still needed from the user",
				Parameters:  requestParams,
				Execute:     c.requestInformation,
			},
			FuncSaveLead: {
				Description: "Save the collected contact details",
				Parameters:  saveParams,
				Execute:     c.saveLead,
			},
		},
	}
}

func decodeConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := tool.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid lead config: %w", err)
	}
	return &cfg, nil
}

func (c *capture) detectTrigger(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := messageParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}

	message := strings.ToLower(params["message"].(string))
	matched := make([]string, 0)
	for _, kw := range cfg.TriggerKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(message, kw) {
			matched = append(matched, kw)
		}
	}
	return tool.OK(map[string]interface{}{
		"triggered":       len(matched) > 0,
		"matchedKeywords": matched,
	}), nil
}

func (c *capture) requestInformation(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := requestParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}

	collected, _ := params["collected"].(map[string]interface{})
	missing := missingFields(cfg.RequiredFields, collected)
	return tool.OKWithMessage(map[string]interface{}{
		"requiredFields": cfg.RequiredFields,
		"missingFields":  missing,
		"complete":       len(missing) == 0,
	}, cfg.PromptMessage), nil
}

func (c *capture) saveLead(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := saveParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}

	values := flatten(params)
	if missing := missingFields(cfg.RequiredFields, values); len(missing) > 0 {
		return tool.FailWithDetails(CodeMissingRequiredFields,
			"Missing required fields: "+strings.Join(missing, ", "),
			map[string]interface{}{"missingFields": missing}), nil
	}
	if email := stringValue(values, "email"); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return tool.Fail(tool.CodeInvalidParameters, "Invalid email address: "+email), nil
		}
	}

	extra := make(map[string]interface{})
	for k, v := range values {
		if !isStandard(k) {
			extra[k] = v
		}
	}
	lead := &model.Lead{
		BotID:          ec.BotID,
		ConversationID: ec.ConversationID,
		Name:           stringValue(values, "name"),
		Email:          stringValue(values, "email"),
		Phone:          stringValue(values, "phone"),
		Company:        stringValue(values, "company"),
		Fields:         extra,
		Source:         ToolID,
	}
	if err := c.store.Create(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to save lead: %w", err)
	}

	c.logger.InfoContext(ctx, "lead captured", "lead_id", lead.ID, "bot_id", ec.BotID)
	return tool.OKWithMessage(map[string]interface{}{"leadId": lead.ID}, cfg.SuccessMessage), nil
}

// flatten 合并 fields 中的字段和顶层参数，顶层参数优先
func flatten(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	if extra, ok := params["fields"].(map[string]interface{}); ok {
		for k, v := range extra {
			out[k] = v
		}
	}
	for k, v := range params {
		if k != "fields" {
			out[k] = v
		}
	}
	return out
}

// missingFields 按配置顺序返回缺失或为空的字段
func missingFields(required []string, values map[string]interface{}) []string {
	missing := make([]string, 0)
	for _, f := range required {
		v, ok := values[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func isStandard(field string) bool {
	for _, f := range standardFields {
		if f == field {
			return true
		}
	}
	return false
}

func stringValue(values map[string]interface{}, key string) string {
	s, _ := values[key].(string)
	return strings.TrimSpace(s)
}
