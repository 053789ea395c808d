package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashwinyue/next-bot/internal/handler"
	"github.com/ashwinyue/next-bot/internal/middleware"
)

// Options 路由选项
type Options struct {
	JWTSecret string
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, opts Options) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(opts.Logger))
	r.Use(middleware.LoggingMiddleware(opts.Logger))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 指标
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(opts.JWTSecret))
	{
		// Tool 工具
		tools := v1.Group("/tools")
		{
			tools.GET("", h.Tool.ListTools)
			tools.GET("/custom", h.Tool.ListCustomTools)
			tools.POST("/custom", h.Tool.CreateCustomTool)
			tools.PUT("/custom/:id", h.Tool.UpdateCustomTool)
			tools.DELETE("/custom/:id", h.Tool.DeleteCustomTool)
			tools.GET("/:id", h.Tool.GetTool)
			tools.PUT("/:id/active", h.Tool.SetToolActive)
		}

		// Bot 工具
		bots := v1.Group("/bots/:bot_id")
		{
			bots.GET("/tools", h.BotTool.ListBotTools)
			bots.GET("/functions", h.BotTool.ListFunctions)
			bots.POST("/tools/:tool_id", h.BotTool.InstallTool)
			bots.PUT("/tools/:tool_id/config", h.BotTool.UpdateConfig)
			bots.PUT("/tools/:tool_id/enabled", h.BotTool.SetEnabled)
			bots.PUT("/tools/:tool_id/credential", h.BotTool.LinkCredential)
			bots.DELETE("/tools/:tool_id/credential", h.BotTool.UnlinkCredential)
			bots.DELETE("/tools/:tool_id", h.BotTool.UninstallTool)
			bots.POST("/tools/:tool_id/execute/:function", h.BotTool.Execute)
		}

		// Credential 凭证
		creds := v1.Group("/credentials")
		{
			creds.GET("", h.Credential.ListCredentials)
			creds.POST("", h.Credential.CreateCredential)
			creds.GET("/:id", h.Credential.GetCredential)
		}
	}

	return r
}
