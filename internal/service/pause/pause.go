// Package pause 提供会话暂停工具，暂停后由人工接管
package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// ToolID 会话暂停工具 ID
const ToolID = "pause-conversation"

// 函数名
const (
	FuncDetectPauseTrigger = "detectPauseTrigger"
	FuncPauseConversation  = "pauseConversation"
	FuncResumeConversation = "resumeConversation"
)

// CodeConversationNotFound 会话不存在
const CodeConversationNotFound = "CONVERSATION_NOT_FOUND"

// Store 会话存储
type Store interface {
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	SetPaused(ctx context.Context, id, reason string, at time.Time) error
	SetActive(ctx context.Context, id string) error
}

// Config 暂停工具配置
type Config struct {
	TriggerPhrases []string `json:"triggerPhrases"`
	PauseMessage   string   `json:"pauseMessage"`
	ResumeMessage  string   `json:"resumeMessage"`
}

// DefaultConfig 默认配置
func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"triggerPhrases": []interface{}{"talk to a human", "speak to a person", "real person", "human agent", "representative"},
		"pauseMessage":   "I've paused our conversation. A member of our team will reply shortly.",
		"resumeMessage":  "The assistant is back. How can I help?",
	}
}

var configSchema = tool.MustSchema(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"triggerPhrases": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"pauseMessage":   map[string]interface{}{"type": "string"},
		"resumeMessage":  map[string]interface{}{"type": "string"},
	},
})

var (
	detectParams = tool.MustObjectSchema(
		&tool.Param{Name: "message", Kind: tool.KindString, Required: true, Description: "The latest user message"},
	)
	pauseParams = tool.MustObjectSchema(
		&tool.Param{Name: "conversationId", Kind: tool.KindString, Description: "Conversation to pause, defaults to the current one"},
		&tool.Param{Name: "reason", Kind: tool.KindString, Description: "Why the conversation is handed over"},
	)
	resumeParams = tool.MustObjectSchema(
		&tool.Param{Name: "conversationId", Kind: tool.KindString, Description: "Conversation to resume, defaults to the current one"},
	)
)

type control struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewDefinition 创建会话暂停工具
func NewDefinition(store Store, logger *slog.Logger) *tool.Definition {
	if logger == nil {
		logger = slog.Default()
	}
	c := &control{store: store, logger: logger, now: time.Now}
	return &tool.Definition{
		ID:            ToolID,
		Name:          "Pause Conversation",
		Description:   "Hand the conversation over to a human operator",
		Type:          tool.TypeConversationControl,
		ConfigSchema:  configSchema,
		DefaultConfig: DefaultConfig(),
		Functions: map[string]*tool.Function{
			FuncDetectPauseTrigger: {
				Description: "Check whether the user asks for a human",
				Parameters:  detectParams,
				Execute:     c.detect,
			},
			FuncPauseConversation: {
				Description: "Pause the assistant for this conversation",
				Parameters:  pauseParams,
				Execute:     c.pause,
			},
			FuncResumeConversation: {
				Description: "Resume the assistant for this conversation",
				Parameters:  resumeParams,
				Execute:     c.resume,
			},
		},
	}
}

func decodeConfig(raw map[string]interface{}) (*Config, error) {
	var cfg Config
	if err := tool.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid pause config: %w", err)
	}
	return &cfg, nil
}

func (c *control) detect(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := detectParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}

	message := strings.ToLower(params["message"].(string))
	for _, phrase := range cfg.TriggerPhrases {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p != "" && strings.Contains(message, p) {
			return tool.OK(map[string]interface{}{"shouldPause": true, "matchedPhrase": p}), nil
		}
	}
	return tool.OK(map[string]interface{}{"shouldPause": false}), nil
}

// conversation 定位目标会话，失败时返回结构化结果
func (c *control) conversation(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*model.Conversation, *tool.Result, error) {
	id, _ := params["conversationId"].(string)
	if id == "" {
		id = ec.ConversationID
	}
	if id == "" {
		return nil, tool.Fail(tool.CodeInvalidParameters, "conversationId is required"), nil
	}
	conv, err := c.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, tool.Fail(CodeConversationNotFound, fmt.Sprintf("Conversation %s not found", id)), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if ec.BotID != "" && conv.BotID != ec.BotID {
		return nil, tool.Fail(CodeConversationNotFound, fmt.Sprintf("Conversation %s not found", id)), nil
	}
	return conv, nil, nil
}

func (c *control) pause(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := pauseParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}
	conv, fail, err := c.conversation(ctx, params, ec)
	if fail != nil || err != nil {
		return fail, err
	}
	if conv.IsPaused() {
		return tool.OKWithMessage(map[string]interface{}{
			"conversationId": conv.ID,
			"status":         model.ConversationPaused,
			"alreadyPaused":  true,
		}, cfg.PauseMessage), nil
	}

	reason, _ := params["reason"].(string)
	at := c.now()
	if err := c.store.SetPaused(ctx, conv.ID, reason, at); err != nil {
		return nil, fmt.Errorf("failed to pause conversation: %w", err)
	}
	c.logger.InfoContext(ctx, "conversation paused", "conversation_id", conv.ID, "bot_id", conv.BotID, "reason", reason)
	return tool.OKWithMessage(map[string]interface{}{
		"conversationId": conv.ID,
		"status":         model.ConversationPaused,
		"pausedAt":       at.UTC().Format(time.RFC3339),
	}, cfg.PauseMessage), nil
}

func (c *control) resume(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
	if err := resumeParams.Validate(params); err != nil {
		return tool.Fail(tool.CodeInvalidParameters, err.Error()), nil
	}
	cfg, err := decodeConfig(ec.Config)
	if err != nil {
		return nil, err
	}
	conv, fail, err := c.conversation(ctx, params, ec)
	if fail != nil || err != nil {
		return fail, err
	}
	if !conv.IsPaused() {
		return tool.OK(map[string]interface{}{
			"conversationId": conv.ID,
			"status":         model.ConversationActive,
			"alreadyActive":  true,
		}), nil
	}

	if err := c.store.SetActive(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("failed to resume conversation: %w", err)
	}
	c.logger.InfoContext(ctx, "conversation resumed", "conversation_id", conv.ID, "bot_id", conv.BotID)
	return tool.OKWithMessage(map[string]interface{}{
		"conversationId": conv.ID,
		"status":         model.ConversationActive,
	}, cfg.ResumeMessage), nil
}
