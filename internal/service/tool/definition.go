package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Type 工具类别
type Type string

const (
	TypeCalendarBooking     Type = "CALENDAR_BOOKING"
	TypeContactForm         Type = "CONTACT_FORM"
	TypeConversationControl Type = "CONVERSATION_CONTROL"
	TypeCustom              Type = "CUSTOM"
	TypeDataQuery           Type = "DATA_QUERY"
	TypePaymentProcessing   Type = "PAYMENT_PROCESSING"
)

// 结果错误码
const (
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeToolInactive       = "TOOL_INACTIVE"
	CodeFunctionNotFound   = "FUNCTION_NOT_FOUND"
	CodeToolDisabled       = "TOOL_DISABLED"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeCredentialNotFound = "CREDENTIAL_NOT_FOUND"
	CodeExecutionFailed    = "EXECUTION_FAILED"
	CodeToolBusy           = "TOOL_BUSY"
	CodeInvalidParameters  = "INVALID_PARAMETERS"
	CodeHTTPError          = "HTTP_ERROR"
	CodeNetworkError       = "NETWORK_ERROR"
)

// Error 结构化的工具错误
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result 工具执行结果，所有成功、失败、跳过共用同一形状
type Result struct {
	Success bool        `json:"success"`
	Skipped bool        `json:"skipped,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// OK 成功结果
func OK(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// OKWithMessage 带提示信息的成功结果
func OKWithMessage(data interface{}, message string) *Result {
	return &Result{Success: true, Data: data, Message: message}
}

// Fail 失败结果
func Fail(code, message string) *Result {
	return &Result{Error: &Error{Code: code, Message: message}}
}

// FailWithDetails 带详情的失败结果
func FailWithDetails(code, message string, details interface{}) *Result {
	return &Result{Error: &Error{Code: code, Message: message, Details: details}}
}

// Skip 跳过结果，调用方应与失败区分处理
func Skip(code, message string) *Result {
	return &Result{Skipped: true, Error: &Error{Code: code, Message: message}}
}

// ErrorCode 返回错误码，成功时为空
func (r *Result) ErrorCode() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// ExecutionContext 调用方身份以及执行前解析出的配置和凭证
type ExecutionContext struct {
	UserID         string                 `json:"userId"`
	BotID          string                 `json:"botId"`
	OrganizationID string                 `json:"organizationId"`
	ConversationID string                 `json:"conversationId,omitempty"`
	WebhookPayload map[string]interface{} `json:"webhookPayload,omitempty"`

	Config       map[string]interface{} `json:"-"`
	Credentials  map[string]interface{} `json:"-"`
	CredentialID string                 `json:"-"`
}

// Handler 工具函数体
type Handler func(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (*Result, error)

// Function 工具中的一个可调用函数
type Function struct {
	Description string
	Parameters  *Schema
	Execute     Handler
	// Exclusive 为 true 时，同一 (bot, tool) 的调用在配置了锁时串行执行
	Exclusive bool
}

// AuthSpec 第三方授权说明
type AuthSpec struct {
	Required         bool     `json:"required"`
	Provider         string   `json:"provider"`
	Scopes           []string `json:"scopes,omitempty"`
	ConnectAction    string   `json:"connectAction,omitempty"`
	DisconnectAction string   `json:"disconnectAction,omitempty"`
}

// Definition 工具定义，注册后视为不可变
type Definition struct {
	ID          string
	Name        string
	Description string
	Type        Type
	// IntegrationType 需要的第三方凭证类型，为空表示无需授权
	IntegrationType string
	ConfigSchema    *Schema
	// CredentialSchema 凭证结构，无凭证的工具为 nil
	CredentialSchema *Schema
	Functions        map[string]*Function
	DefaultConfig    map[string]interface{}
	Auth             *AuthSpec
}

// 定义校验错误
var (
	ErrEmptyToolID      = errors.New("tool id is empty")
	ErrNoFunctions      = errors.New("tool has no functions")
	ErrFunctionNoHandle = errors.New("tool function has no execute body")
)

// Validate 校验定义结构，不校验 schema 内容
func (d *Definition) Validate() error {
	if d == nil || d.ID == "" {
		return ErrEmptyToolID
	}
	if len(d.Functions) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFunctions, d.ID)
	}
	for name, fn := range d.Functions {
		if fn == nil || fn.Execute == nil {
			return fmt.Errorf("%w: %s.%s", ErrFunctionNoHandle, d.ID, name)
		}
	}
	return nil
}

// Function 获取函数
func (d *Definition) Function(name string) (*Function, bool) {
	fn, ok := d.Functions[name]
	return fn, ok
}

// FunctionNames 按名称排序的函数列表
func (d *Definition) FunctionNames() []string {
	names := make([]string, 0, len(d.Functions))
	for name := range d.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveConfig 依次使用 bot 配置、默认配置、空配置
func (d *Definition) ResolveConfig(botConfig map[string]interface{}) map[string]interface{} {
	if len(botConfig) > 0 {
		return botConfig
	}
	if len(d.DefaultConfig) > 0 {
		return d.DefaultConfig
	}
	return map[string]interface{}{}
}

// MergeConfig 将 bot 配置覆盖到默认配置上
func (d *Definition) MergeConfig(botConfig map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(d.DefaultConfig)+len(botConfig))
	for k, v := range d.DefaultConfig {
		merged[k] = v
	}
	for k, v := range botConfig {
		merged[k] = v
	}
	return merged
}

// ValidateConfig 使用 ConfigSchema 校验配置
func (d *Definition) ValidateConfig(cfg map[string]interface{}) error {
	if d.ConfigSchema == nil {
		return nil
	}
	return d.ConfigSchema.Validate(cfg)
}

// Decode 将 map 解码到结构体，按 json 标签匹配并允许弱类型转换
func Decode(src map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}
