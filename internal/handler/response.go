package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-bot/internal/middleware"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// success 成功响应 (200)
func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// created 创建成功响应 (201)
func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// noContent 无内容响应 (204)
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// badRequest 400 错误响应
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: msg})
}

// unauthorized 401 错误响应
func unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: http.StatusUnauthorized, Message: msg})
}

// notFound 404 错误响应
func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: msg})
}

// errorResponse 根据错误类型返回相应的错误响应
func errorResponse(c *gin.Context, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, tool.ErrToolNotFound),
		errors.Is(err, tool.ErrNotInstalled),
		errors.Is(err, tool.ErrCredentialNotOwned):
		notFound(c, err.Error())
	case errors.Is(err, tool.ErrInvalidInvocation),
		errors.Is(err, tool.ErrNotCustomTool),
		errors.Is(err, tool.ErrInvalidCustomTool),
		errors.Is(err, tool.ErrInvalidConfig),
		errors.Is(err, tool.ErrCredentialMismatch):
		badRequest(c, err.Error())
	default:
		c.JSON(http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: err.Error()})
	}
}

// requireUser 获取当前用户ID，缺失时写入 401
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		unauthorized(c, "missing user identity")
		return "", false
	}
	return userID, true
}
