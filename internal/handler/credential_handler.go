package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service"
	"github.com/ashwinyue/next-bot/internal/service/credential"
)

const maskedValue = "********"

// CredentialHandler 凭证处理器
type CredentialHandler struct {
	svc *service.Services
}

// NewCredentialHandler 创建处理器
func NewCredentialHandler(svc *service.Services) *CredentialHandler {
	return &CredentialHandler{svc: svc}
}

// CreateCredentialRequest 创建凭证请求，用户取自当前身份
type CreateCredentialRequest struct {
	Provider    string                 `json:"provider" binding:"required"`
	Credentials map[string]interface{} `json:"credentials" binding:"required"`
	BotID       *string                `json:"botId"`
}

// CredentialView 凭证视图，值已脱敏
type CredentialView struct {
	*model.Credential
	Fields map[string]string `json:"credentials"`
}

func maskCredential(cred *model.Credential) *CredentialView {
	fields := make(map[string]string, len(cred.Credentials))
	for k := range cred.Credentials {
		fields[k] = maskedValue
	}
	return &CredentialView{Credential: cred, Fields: fields}
}

// CreateCredential 创建凭证
func (h *CredentialHandler) CreateCredential(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cred, err := h.svc.Credential.CreateCredential(c.Request.Context(), &credential.CreateInput{
		UserID:      userID,
		Provider:    req.Provider,
		Credentials: req.Credentials,
		BotID:       req.BotID,
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	created(c, maskCredential(cred))
}

// GetCredential 获取凭证，只返回字段名
func (h *CredentialHandler) GetCredential(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	cred, err := h.svc.Credential.GetCredential(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	if cred == nil || cred.UserID != userID {
		notFound(c, "credential not found")
		return
	}
	success(c, maskCredential(cred))
}

// ListCredentials 按提供方列出当前用户的凭证
func (h *CredentialHandler) ListCredentials(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	provider := c.Query("provider")
	if provider == "" {
		badRequest(c, "provider is required")
		return
	}
	var botID *string
	if id := c.Query("bot_id"); id != "" {
		botID = &id
	}

	creds, err := h.svc.Credential.FindCredentialsByProvider(c.Request.Context(), userID, provider, botID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	views := make([]*CredentialView, 0, len(creds))
	for _, cred := range creds {
		cred.Credentials = h.svc.Credential.Decrypt(cred)
		views = append(views, maskCredential(cred))
	}
	success(c, gin.H{
		"items": views,
		"total": len(views),
	})
}
