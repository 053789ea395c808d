package handler

import (
	"github.com/ashwinyue/next-bot/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Tool       *ToolHandler
	BotTool    *BotToolHandler
	Credential *CredentialHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Tool:       NewToolHandler(svc),
		BotTool:    NewBotToolHandler(svc),
		Credential: NewCredentialHandler(svc),
	}
}
