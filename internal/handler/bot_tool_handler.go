package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-bot/internal/middleware"
	"github.com/ashwinyue/next-bot/internal/service"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// BotToolHandler bot 工具安装与执行处理器
type BotToolHandler struct {
	svc *service.Services
}

// NewBotToolHandler 创建处理器
func NewBotToolHandler(svc *service.Services) *BotToolHandler {
	return &BotToolHandler{svc: svc}
}

// InstallRequest 安装或更新配置请求
type InstallRequest struct {
	Config map[string]interface{} `json:"config"`
}

// ListBotTools 列出 bot 已安装的工具
func (h *BotToolHandler) ListBotTools(c *gin.Context) {
	views, err := h.svc.Tool.ListBotTools(c.Request.Context(), c.Param("bot_id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, gin.H{
		"items": views,
		"total": len(views),
	})
}

// InstallTool 为 bot 安装工具
func (h *BotToolHandler) InstallTool(c *gin.Context) {
	var req InstallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	bt, err := h.svc.Tool.InstallTool(c.Request.Context(), c.Param("bot_id"), c.Param("tool_id"), req.Config)
	if err != nil {
		errorResponse(c, err)
		return
	}
	created(c, bt)
}

// UpdateConfig 更新工具配置
func (h *BotToolHandler) UpdateConfig(c *gin.Context) {
	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	bt, err := h.svc.Tool.UpdateBotToolConfig(c.Request.Context(), c.Param("bot_id"), c.Param("tool_id"), req.Config)
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, bt)
}

// SetEnabled 启用或停用工具
func (h *BotToolHandler) SetEnabled(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	bt, err := h.svc.Tool.SetBotToolEnabled(c.Request.Context(), c.Param("bot_id"), c.Param("tool_id"), *req.Enabled)
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, bt)
}

// LinkCredential 关联凭证
func (h *BotToolHandler) LinkCredential(c *gin.Context) {
	var req struct {
		CredentialID string `json:"credentialId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bt, err := h.svc.Tool.LinkCredential(c.Request.Context(), userID, c.Param("bot_id"), c.Param("tool_id"), req.CredentialID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, bt)
}

// UnlinkCredential 解除凭证关联
func (h *BotToolHandler) UnlinkCredential(c *gin.Context) {
	deleted, err := h.svc.Tool.UnlinkCredential(c.Request.Context(), c.Param("bot_id"), c.Param("tool_id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, gin.H{"credentialDeleted": deleted})
}

// UninstallTool 卸载工具
func (h *BotToolHandler) UninstallTool(c *gin.Context) {
	if err := h.svc.Tool.UninstallTool(c.Request.Context(), c.Param("bot_id"), c.Param("tool_id")); err != nil {
		errorResponse(c, err)
		return
	}
	noContent(c)
}

// ExecuteRequest 执行请求
type ExecuteRequest struct {
	Params         map[string]interface{} `json:"params"`
	ConversationID string                 `json:"conversationId"`
	WebhookPayload map[string]interface{} `json:"webhookPayload"`
}

// Execute 执行工具函数，结构化失败以 200 返回
func (h *BotToolHandler) Execute(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ExecuteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	result, err := h.svc.Executor.ExecuteTool(c.Request.Context(), c.Param("tool_id"), c.Param("function"), req.Params, tool.ExecutionContext{
		UserID:         userID,
		BotID:          c.Param("bot_id"),
		OrganizationID: middleware.GetOrganizationID(c),
		ConversationID: req.ConversationID,
		WebhookPayload: req.WebhookPayload,
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, result)
}

// FunctionView 暴露给模型的函数
type FunctionView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListFunctions 列出当前对 bot 模型可见的函数
func (h *BotToolHandler) ListFunctions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tools, err := h.svc.Toolset.Tools(ctx, tool.ExecutionContext{
		UserID:         userID,
		BotID:          c.Param("bot_id"),
		OrganizationID: middleware.GetOrganizationID(c),
	})
	if err != nil {
		errorResponse(c, err)
		return
	}

	views := make([]FunctionView, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			errorResponse(c, err)
			return
		}
		views = append(views, FunctionView{Name: info.Name, Description: info.Desc})
	}
	success(c, gin.H{
		"items": views,
		"total": len(views),
	})
}
