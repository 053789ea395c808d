package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-bot/internal/service"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// ToolHandler 工具处理器
type ToolHandler struct {
	svc *service.Services
}

// NewToolHandler 创建工具处理器
func NewToolHandler(svc *service.Services) *ToolHandler {
	return &ToolHandler{svc: svc}
}

// ListTools 列出注册表中的工具，可按 type 过滤
func (h *ToolHandler) ListTools(c *gin.Context) {
	tools := h.svc.Tool.ListTools(c.Request.Context(), tool.Type(c.Query("type")))
	success(c, gin.H{
		"items": tools,
		"total": len(tools),
	})
}

// GetTool 获取工具描述，bot_id 查询参数用于解析 bot 私有工具
func (h *ToolHandler) GetTool(c *gin.Context) {
	info, err := h.svc.Tool.GetTool(c.Request.Context(), c.Param("id"), c.Query("bot_id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, info)
}

// ListCustomTools 列出自定义工具，带 bot_id 时包含该 bot 的私有工具
func (h *ToolHandler) ListCustomTools(c *gin.Context) {
	rows, err := h.svc.Tool.ListCustomTools(c.Request.Context(), c.Query("bot_id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, gin.H{
		"items": rows,
		"total": len(rows),
	})
}

// CreateCustomTool 创建自定义工具
func (h *ToolHandler) CreateCustomTool(c *gin.Context) {
	var req tool.CustomToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	row, err := h.svc.Tool.CreateCustomTool(c.Request.Context(), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	created(c, row)
}

// UpdateCustomTool 更新自定义工具
func (h *ToolHandler) UpdateCustomTool(c *gin.Context) {
	var req tool.CustomToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	row, err := h.svc.Tool.UpdateCustomTool(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, row)
}

// SetToolActive 全局启用或停用工具
func (h *ToolHandler) SetToolActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.Tool.SetToolActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		errorResponse(c, err)
		return
	}
	success(c, gin.H{"id": c.Param("id"), "active": *req.Active})
}

// DeleteCustomTool 删除自定义工具
func (h *ToolHandler) DeleteCustomTool(c *gin.Context) {
	if err := h.svc.Tool.DeleteCustomTool(c.Request.Context(), c.Param("id")); err != nil {
		errorResponse(c, err)
		return
	}
	noContent(c)
}
